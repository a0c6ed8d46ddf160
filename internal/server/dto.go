package server

import (
	"traceline/internal/domain"
	"traceline/internal/engine"
	"traceline/internal/trace"
)

// Request payloads

type CreateLicensePlateRequest struct {
	LPNumber           string `json:"lp_number" minLength:"1"`
	ProductDescription string `json:"product_description,omitempty"`
	Quantity           string `json:"quantity" example:"12.5"`
	UOM                string `json:"uom,omitempty" example:"kg"`
	QAStatus           string `json:"qa_status,omitempty" enum:"Passed,Failed,Quarantine,Pending"`
	StageSuffix        string `json:"stage_suffix,omitempty"`
	Location           string `json:"location,omitempty"`
	WOID               string `json:"wo_id,omitempty"`
}

type RecordInspectionRequest struct {
	Result string `json:"result" enum:"Passed,Failed,Quarantine,Pending"`
	Notes  string `json:"notes,omitempty"`
}

type LinkConsumptionRequest struct {
	ParentLPID  string `json:"parent_lp_id"`
	ChildLPID   string `json:"child_lp_id"`
	Quantity    string `json:"quantity" example:"2.5"`
	WOID        string `json:"wo_id,omitempty"`
	OperationID string `json:"operation_id,omitempty"`
}

type LinkOutputRequest struct {
	ConsumedLPIDs []string `json:"consumed_lp_ids"`
	OutputLPID    string   `json:"output_lp_id"`
	WOID          string   `json:"wo_id,omitempty"`
	OperationID   string   `json:"operation_id,omitempty"`
}

type LinkSplitRequest struct {
	SourceLPID string `json:"source_lp_id"`
	NewLPID    string `json:"new_lp_id"`
	Quantity   string `json:"quantity" example:"3"`
}

type LinkMergeRequest struct {
	SourceLPIDs []string `json:"source_lp_ids"`
	TargetLPID  string   `json:"target_lp_id"`
	WOID        string   `json:"wo_id,omitempty"`
}

// Response payloads

type TraceMetadata struct {
	TotalQuantity     float64        `json:"total_quantity"`
	QAStatus          trace.QAStatus `json:"qa_status"`
	TraceCompleteness int            `json:"trace_completeness"`
}

type TraceTreeResponse struct {
	Root     *trace.Node   `json:"root"`
	Children []*trace.Node `json:"children"`
	Depth    int           `json:"depth"`
	Path     []string      `json:"path"`
	Metadata TraceMetadata `json:"metadata"`
}

type TraceData struct {
	Root          *trace.Node       `json:"root"`
	Tree          TraceTreeResponse `json:"tree"`
	Summary       trace.Summary     `json:"summary"`
	Anomalies     []trace.Anomaly   `json:"anomalies,omitempty"`
	HasMoreLevels bool              `json:"has_more_levels"`
}

// TraceResponse is either {success:true,data} or {success:false,message}.
type TraceResponse struct {
	Success bool       `json:"success"`
	Data    *TraceData `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
}

func traceResponse(res engine.TraceResult) TraceResponse {
	if !res.Found || res.Tree == nil {
		msg := res.Message
		if msg == "" {
			msg = engine.NotFoundMessage(res.LPNumber)
		}
		return TraceResponse{Success: false, Message: msg}
	}
	t := res.Tree
	return TraceResponse{
		Success: true,
		Data: &TraceData{
			Root: t.Root(),
			Tree: TraceTreeResponse{
				Root:     t.Root(),
				Children: t.Roots,
				Depth:    t.Depth,
				Path:     nonNilSlice(t.Path),
				Metadata: TraceMetadata{
					TotalQuantity:     t.Summary.TotalQuantity,
					QAStatus:          t.Summary.QAStatus,
					TraceCompleteness: t.Summary.TraceCompleteness,
				},
			},
			Summary:       t.Summary,
			Anomalies:     t.Anomalies,
			HasMoreLevels: res.HasMoreLevels,
		},
	}
}

type GenealogyResponse struct {
	LicensePlate domain.LicensePlate `json:"license_plate"`
	Backward     TraceResponse       `json:"backward"`
	Forward      TraceResponse       `json:"forward"`
}

type LinkCreatedResponse struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

type LinksCreatedResponse struct {
	IDs     []string `json:"ids"`
	Created bool     `json:"created"`
}

type LinkReversedResponse struct {
	ID         string `json:"id"`
	Reversed   bool   `json:"reversed"`
	ReversedAt string `json:"reversed_at" format:"date-time"`
}

type paginatedLicensePlates struct {
	Items      []domain.LicensePlate `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

func eventResponse(evt domain.Event) EventResponse {
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		OrgID:      evt.OrgID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    evt.Payload,
	}
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	OrgID       string   `json:"org_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

func nonNilSlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func linkIDs(links []domain.GenealogyLink) []string {
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.ID)
	}
	return ids
}
