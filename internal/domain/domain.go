package domain

// Operation types recorded on genealogy links.
const (
	OpConsume = "consume"
	OpOutput  = "output"
	OpSplit   = "split"
	OpMerge   = "merge"
)

type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type LicensePlate struct {
	ID                 string `json:"id"`
	OrgID              string `json:"org_id"`
	LPNumber           string `json:"lp_number"`
	ProductDescription string `json:"product_description"`
	Quantity           string `json:"quantity"`
	UOM                string `json:"uom"`
	QAStatus           string `json:"qa_status" enum:"Passed,Failed,Quarantine,Pending"`
	StageSuffix        string `json:"stage_suffix,omitempty"`
	Location           string `json:"location,omitempty"`
	WOID               string `json:"wo_id,omitempty"`
	CreatedAt          string `json:"created_at" format:"date-time"`
	UpdatedAt          string `json:"updated_at" format:"date-time"`
}

type GenealogyLink struct {
	ID            string  `json:"id"`
	OrgID         string  `json:"org_id"`
	ParentLPID    string  `json:"parent_lp_id"`
	ChildLPID     string  `json:"child_lp_id"`
	OperationType string  `json:"operation_type" enum:"consume,output,split,merge"`
	Quantity      string  `json:"quantity,omitempty"`
	OperationDate string  `json:"operation_date" format:"date-time"`
	WOID          *string `json:"wo_id"`
	OperationID   *string `json:"operation_id"`
	IsReversed    bool    `json:"is_reversed"`
	ReversedAt    *string `json:"reversed_at"`
	ReversedBy    *string `json:"reversed_by"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	CreatedBy     string  `json:"created_by"`
}

type Inspection struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	LPID        string `json:"lp_id"`
	Result      string `json:"result" enum:"Passed,Failed,Quarantine,Pending"`
	Notes       string `json:"notes,omitempty"`
	InspectorID string `json:"inspector_id"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
