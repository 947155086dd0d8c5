package enum

type MessageDirection string

const (
	MessageIncoming MessageDirection = "incoming"
	MessageOutgoing MessageDirection = "outgoing"
)

func (d MessageDirection) String() string {
	return string(d)
}
