package resource

// ReceiverName is the message receiver under which a node hosts its ResourceManager.
const ReceiverName = "resource_manager"

// MessageKind discriminates resource-manager messages on the wire.
type MessageKind string

const (
	KindRequest  MessageKind = "resource.request"
	KindResponse MessageKind = "resource.response"
)

// Message is a resource-manager message. The concrete types are
// *RequestMessage and *ResponseMessage.
type Message interface {
	PayloadKind() string
}

// RequestMessage asks a remote ResourceManager for a waiting protocol satisfying Condition.
type RequestMessage struct {
	Initiator ProtocolRef `json:"initiator"`
	Condition Condition   `json:"condition"`
}

// PayloadKind implements Message.
func (*RequestMessage) PayloadKind() string { return string(KindRequest) }

// ResponseMessage approves or rejects a RequestMessage.
// Paired is set only when Approved is true.
type ResponseMessage struct {
	Initiator ProtocolRef  `json:"initiator"`
	Approved  bool         `json:"approved"`
	Paired    *ProtocolRef `json:"paired,omitempty"`
}

// PayloadKind implements Message.
func (*ResponseMessage) PayloadKind() string { return string(KindResponse) }
