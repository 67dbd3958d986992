package engine

import (
	"errors"
)

var (
	// ErrStructureTooDeep: the document nests beyond the configured depth
	// bound. Bounds stack and resource use against adversarial payloads.
	ErrStructureTooDeep = errors.New("document structure too deep")

	// ErrPayloadDecode: the payload is not valid UTF-8 JSON.
	ErrPayloadDecode = errors.New("payload is not valid JSON")

	// ErrBudgetExceeded: the invocation ran past its latency budget.
	ErrBudgetExceeded = errors.New("latency budget exceeded")
)
