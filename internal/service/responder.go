package service

import (
	"context"
	"fmt"
	"strings"

	"mangwale-chat/internal/markup"
	"mangwale-chat/internal/model"
)

// Button values the relay assistant understands.
const (
	ActionOrderFood  = "ORDER_FOOD"
	ActionSendParcel = "SEND_PARCEL"
	ActionTrackOrder = "TRACK_ORDER"
	ActionHelp       = "HELP"
)

var mainMenu = []model.OptionButton{
	{Label: "Order Food", Value: ActionOrderFood},
	{Label: "Send Parcel", Value: ActionSendParcel},
	{Label: "Track Order", Value: ActionTrackOrder},
	{Label: "Help", Value: ActionHelp},
}

var featuredItems = []model.ProductCard{
	{
		ID:           "item-biryani",
		Name:         "Chicken Biryani",
		Image:        "https://cdn.mangwale.ai/items/biryani.jpg",
		Rating:       4.5,
		DeliveryTime: "30-40 min",
		Price:        "₹250",
		VariantGroups: []model.VariantGroup{{
			ID:   "size",
			Name: "Size",
			Options: []model.VariantOption{
				{ID: "half", Label: "Half", Price: "₹250"},
				{ID: "full", Label: "Full", Price: "₹420"},
			},
		}},
		Action: model.CardAction{Label: "Add", Value: "ADD_item-biryani"},
	},
	{
		ID:           "item-misal",
		Name:         "Misal Pav",
		Image:        "https://cdn.mangwale.ai/items/misal.jpg",
		Rating:       4.7,
		DeliveryTime: "20-25 min",
		Price:        "₹90",
		Action:       model.CardAction{Label: "Add", Value: "ADD_item-misal"},
	},
}

// Responder produces the assistant reply (with affordance markup) for one user
// input and the session as the conversation leaves it. History holds the recent
// transcript, oldest first, including the input itself.
type Responder interface {
	Reply(ctx context.Context, session model.Session, history []model.StoredMessage, input string) (string, model.Session)
}

// RuleResponder is the relay's stand-in for the conversational backend: a small
// rule table that exercises buttons, cards and the login prompt.
type RuleResponder struct{}

func (r RuleResponder) Reply(_ context.Context, session model.Session, _ []model.StoredMessage, input string) (string, model.Session) {
	if content, next, ok := r.match(session, input); ok {
		return content, next
	}
	return fallbackReply(), session
}

func fallbackReply() string {
	return render("Sorry, I didn't get that.", []model.OptionButton{{Label: "Help", Value: ActionHelp}})
}

// match reports false when no rule recognises the input.
func (RuleResponder) match(session model.Session, input string) (string, model.Session, bool) {
	text := strings.TrimSpace(input)
	key := strings.ToUpper(text)
	lower := strings.ToLower(text)

	switch {
	case key == ActionHelp || lower == "help":
		session.CurrentStep = "help"
		return render("I can help you order food, send a parcel or track an order.", mainMenu[:3]), session, true

	case key == ActionOrderFood || strings.Contains(lower, "food") || strings.Contains(lower, "hungry"):
		session.Module = "food"
		if !session.Authenticated {
			session.CurrentStep = "awaiting_login"
			return render("Please login to place an order.", []model.OptionButton{
				{Label: "Login", Value: model.ActionLogin},
			}), session, true
		}
		session.CurrentStep = "browsing"
		return markup.Render(markup.TextWithAffordances{
			Content: "Popular near you:",
			Cards:   featuredItems,
		}), session, true

	case strings.HasPrefix(key, "ADD_"):
		session.CurrentStep = "cart"
		return render(fmt.Sprintf("Added %s to your cart.", strings.TrimPrefix(text, "ADD_")), []model.OptionButton{
			{Label: "Checkout", Value: "CHECKOUT"},
			{Label: "Keep browsing", Value: ActionOrderFood},
		}), session, true

	case key == ActionSendParcel || strings.Contains(lower, "parcel"):
		session.Module = "parcel"
		if session.Location == nil {
			session.CurrentStep = "awaiting_pickup"
			return "Share your pickup location to get started.", session, true
		}
		session.CurrentStep = "parcel_type"
		return render(fmt.Sprintf("Pickup from %.4f, %.4f. What are you sending?", session.Location.Lat, session.Location.Lng), []model.OptionButton{
			{Label: "Documents", Value: "PARCEL_DOCS"},
			{Label: "Package", Value: "PARCEL_BOX"},
		}), session, true

	case key == ActionTrackOrder || strings.Contains(lower, "track"):
		session.CurrentStep = "tracking"
		return "You have no active orders right now.", session, true

	case strings.HasPrefix(text, "📍"):
		return "Thanks! I've saved your location.", session, true

	case lower == "hi" || lower == "hello" || lower == "start" || lower == "hey":
		session.CurrentStep = "welcome"
		greeting := "Welcome to Mangwale! What would you like to do?"
		if session.UserName != "" {
			greeting = fmt.Sprintf("Welcome back, %s! What would you like to do?", session.UserName)
		}
		return render(greeting, mainMenu), session, true

	default:
		return "", session, false
	}
}

func render(content string, buttons []model.OptionButton) string {
	return markup.Render(markup.TextWithAffordances{Content: content, Buttons: buttons})
}
