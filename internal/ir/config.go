package ir

// Config is the top-level evaluated configuration.
type Config struct {
	Resources []*Resource    `pkl:"resources" json:"resources"`
	Outputs   map[string]any `pkl:"outputs" json:"outputs,omitempty"`
}
