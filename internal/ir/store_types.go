package ir

// NOTE: store-layer record shapes, not part of the exchanged model.

// DecisionRecord is one resolved sync decision handed to storage for
// application on one side.
type DecisionRecord struct {
	ObjectID   string
	ObjectType string
	// Side is the side whose value became canonical ("low" or "high").
	Side    string
	Mockify bool
	Grants  []ActionObjectPermission
	// Payload is the canonical object to store, already mocked when Mockify
	// is set. Nil when the chosen side has no object (a deletion).
	Payload Object
}
