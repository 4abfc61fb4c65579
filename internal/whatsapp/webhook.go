package whatsapp

// Webhook payload envelope as pushed by the Cloud API: accounts → entries →
// changes, each change carrying zero or more messages and delivery statuses.
// Only the fields this service consumes are mapped.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Messages         []Message `json:"messages"`
	Statuses         []Status  `json:"statuses"`
}

type Message struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text"`
	Interactive *Interactive `json:"interactive"`
}

type Text struct {
	Body string `json:"body"`
}

type Interactive struct {
	Type        string `json:"type"`
	ListReply   *Reply `json:"list_reply"`
	ButtonReply *Reply `json:"button_reply"`
}

type Reply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Status struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// InboundKind is the flattened shape of one message event.
type InboundKind string

const (
	KindText   InboundKind = "text"
	KindList   InboundKind = "list"
	KindButton InboundKind = "button"
	KindOther  InboundKind = "other"
)

// Inbound is one message event with the envelope nesting stripped away:
// exactly what the conversation layer consumes.
type Inbound struct {
	EventID    string
	From       string
	Kind       InboundKind
	Text       string // plain-text body, when Kind == KindText
	ReplyID    string // opaque identifier, when Kind is list or button
	ReplyTitle string
}

// Flatten walks the envelope and extracts message events in delivery order.
// Status events are skipped; outbound delivery state is not tracked.
func (e *Envelope) Flatten() []Inbound {
	var inbound []Inbound
	for _, entry := range e.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				in := Inbound{EventID: msg.ID, From: msg.From}
				switch {
				case msg.Type == "text" && msg.Text != nil:
					in.Kind = KindText
					in.Text = msg.Text.Body
				case msg.Type == "interactive" && msg.Interactive != nil && msg.Interactive.ListReply != nil:
					in.Kind = KindList
					in.ReplyID = msg.Interactive.ListReply.ID
					in.ReplyTitle = msg.Interactive.ListReply.Title
				case msg.Type == "interactive" && msg.Interactive != nil && msg.Interactive.ButtonReply != nil:
					in.Kind = KindButton
					in.ReplyID = msg.Interactive.ButtonReply.ID
					in.ReplyTitle = msg.Interactive.ButtonReply.Title
				default:
					in.Kind = KindOther
				}
				inbound = append(inbound, in)
			}
		}
	}
	return inbound
}
