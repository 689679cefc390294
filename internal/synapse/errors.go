package synapse

import "fmt"

// APIError is a non-2xx answer from the payments provider. The message is
// the provider's own English diagnostic so it can be relayed to the person
// who issued the command.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("synapse api: %s (http %d)", e.Message, e.StatusCode)
}

type errorWire struct {
	Error struct {
		En string `json:"en"`
	} `json:"error"`
	Message string `json:"message"`
}

func (w errorWire) text() string {
	if w.Error.En != "" {
		return w.Error.En
	}
	return w.Message
}
