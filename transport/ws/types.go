package ws

// requestMessage is a requester->device message carrying one command
// envelope: an opaque header block and a raw body.
type requestMessage struct {
	Header []byte
	Body   []byte
}

// responseMessage is a device->requester message. The first message of a
// response carries the headers, subsequent messages carry body chunks, and
// the last message has Done set.
type responseMessage struct {
	Header []byte
	Body   []byte
	Done   bool
}
