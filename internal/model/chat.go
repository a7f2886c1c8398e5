package model

type Platform string

const (
	PlatformWeb      Platform = "web"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformTelegram Platform = "telegram"
	PlatformVoice    Platform = "voice"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Button values yang dipakai backend untuk minta user login dulu.
const (
	ActionLogin        = "__LOGIN__"
	ActionAuthenticate = "__AUTHENTICATE__"
)

// IsLoginAction reports whether a button value is the server-driven login prompt.
func IsLoginAction(value string) bool {
	return value == ActionLogin || value == ActionAuthenticate
}

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Session is the conversation identity. The client owns it; the backend keeps a
// mirror keyed by the same ID.
type Session struct {
	ID            string                 `json:"id"`
	PhoneNumber   string                 `json:"phoneNumber"`
	Platform      Platform               `json:"platform"`
	CurrentStep   string                 `json:"currentStep"`
	Module        string                 `json:"module,omitempty"`
	Authenticated bool                   `json:"authenticated"`
	AuthToken     string                 `json:"auth_token,omitempty"`
	UserName      string                 `json:"user_name,omitempty"`
	Location      *Location              `json:"location,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
	CreatedAt     int64                  `json:"createdAt"`
	UpdatedAt     int64                  `json:"updatedAt"`
}

type OptionButton struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
}

type CardAction struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type VariantOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Price string `json:"price,omitempty"`
}

type VariantGroup struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Options []VariantOption `json:"options"`
}

type ProductCard struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Image         string         `json:"image"`
	Rating        float64        `json:"rating,omitempty"`
	DeliveryTime  string         `json:"deliveryTime,omitempty"`
	Price         string         `json:"price,omitempty"`
	Description   string         `json:"description,omitempty"`
	VariantGroups []VariantGroup `json:"variantGroups,omitempty"`
	Action        CardAction     `json:"action"`
}

// ChatMessage is one entry of the visible transcript. Never mutated after creation.
type ChatMessage struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp int64          `json:"timestamp"`
	Buttons   []OptionButton `json:"buttons,omitempty"`
	Cards     []ProductCard  `json:"cards,omitempty"`
}
