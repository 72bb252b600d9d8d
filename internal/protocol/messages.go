package protocol

// WELCOME (server -> client), sent once per connection.
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	GridID          string     `json:"grid_id"`
	GridParams      GridParams `json:"grid_params"`
	Catalog         DigestRef  `json:"item_catalog"`
	Items           []string   `json:"items"`
}

type GridParams struct {
	CellSize   float64    `json:"cell_size"`
	HalfExtent [3]float64 `json:"half_extent"`
	Epsilon    float64    `json:"epsilon"`
	MinCell    [3]int     `json:"min_cell"`
	MaxCell    [3]int     `json:"max_cell"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// PLACE (client -> server)
type PlaceMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ReqID           string     `json:"req_id"`
	Item            string     `json:"item"`
	Pos             [3]float64 `json:"pos"`
}

// REMOVE (client -> server)
type RemoveMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ReqID           string     `json:"req_id"`
	Pos             [3]float64 `json:"pos"`
}

// QUERY (client -> server)
type QueryMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ReqID           string     `json:"req_id"`
	Pos             [3]float64 `json:"pos"`
}

// RESULT (server -> client), one per request. For names the request type.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	For             string `json:"for"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`

	PlacementID string      `json:"placement_id,omitempty"`
	Item        string      `json:"item,omitempty"`
	Anchor      *[3]float64 `json:"anchor,omitempty"`
	Pivot       *[3]int     `json:"pivot,omitempty"`
	Cells       [][3]int    `json:"cells,omitempty"`
}
