package grpc

// RowMessage is one row of a FlushRequest: a key plus its column values.
type RowMessage struct {
	Key    string                 `json:"key"`
	Values map[string]interface{} `json:"values"`
}

// FlushRequest asks the server to flush a batch of rows into a segment.
type FlushRequest struct {
	Partition string       `json:"partition"`
	Segment   string       `json:"segment"`
	Columns   []string     `json:"columns"`
	Rows      []RowMessage `json:"rows"`
}

// FlushResponse reports whether the flush attempt's CAS commit succeeded.
type FlushResponse struct {
	Committed bool `json:"committed"`
}

// ReadRowsRequest asks the server to stream the current logical rows of a
// segment, projected to Columns.
type ReadRowsRequest struct {
	Partition string   `json:"partition"`
	Segment   string   `json:"segment"`
	Columns   []string `json:"columns"`
}

// ReadRowsResponse is one streamed row of a ReadRows call.
type ReadRowsResponse struct {
	Key    string                 `json:"key"`
	Values map[string]interface{} `json:"values"`
}
