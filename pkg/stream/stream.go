package stream

// Record is a single object extracted from a response page. Values keep the
// shape of the decoded JSON; numbers are json.Number.
type Record = map[string]any

// ReplicationMethod describes how a stream is synchronised.
type ReplicationMethod string

const (
	// Incremental streams resume from a persisted replication key value.
	Incremental ReplicationMethod = "INCREMENTAL"
)

// Stream describes one extractable endpoint of the API.
type Stream struct {
	// Name identifies the stream in state and output (e.g. "returns")
	Name string

	// Path is the endpoint path relative to the API base URL
	Path string

	// RecordsPath is the dotted path of the record array in a response body
	RecordsPath string

	PrimaryKeys       []string
	ReplicationKey    string
	ReplicationMethod ReplicationMethod
}

// Returns is the return list stream, filtered and replicated on updated_at.
var Returns = Stream{
	Name:              "returns",
	Path:              "/warehouse/return/list",
	RecordsPath:       "returns",
	PrimaryKeys:       []string{"id"},
	ReplicationKey:    "updated_at",
	ReplicationMethod: Incremental,
}

// Schema returns the JSON schema announced for the stream. Only the key
// properties are typed; every other field is passed through untyped.
func (s Stream) Schema() map[string]any {
	properties := map[string]any{}
	for _, key := range s.PrimaryKeys {
		properties[key] = map[string]any{"type": []string{"integer", "string"}}
	}
	if s.ReplicationKey != "" {
		properties[s.ReplicationKey] = map[string]any{
			"type":   []string{"null", "string"},
			"format": "date-time",
		}
	}
	return map[string]any{
		"type":                 []string{"null", "object"},
		"additionalProperties": true,
		"properties":           properties,
	}
}

// Catalog lists every stream the tap can extract.
var Catalog = []Stream{Returns}

// Lookup returns the catalogued stream with the given name.
func Lookup(name string) (Stream, bool) {
	for _, s := range Catalog {
		if s.Name == name {
			return s, true
		}
	}
	return Stream{}, false
}
