package responderv1

import (
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func TestCodecJSONMessages(t *testing.T) {
	ts := timestamppb.New(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	in := &AnalyzeAlertRequest{Alert: &Alert{Id: "a-1", ServiceId: "checkout", Severity: "HIGH", Timestamp: ts}}

	data, err := Codec{}.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out AnalyzeAlertRequest
	if err := (Codec{}).Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.GetAlert().GetId() != "a-1" || !out.Alert.Timestamp.AsTime().Equal(ts.AsTime()) {
		t.Fatalf("unexpected decode: %+v", out.Alert)
	}
}

func TestCodecProtoMessages(t *testing.T) {
	in := &healthpb.HealthCheckRequest{Service: "mirador.responder.v1.Responder"}
	data, err := Codec{}.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(data) > 0 && data[0] == '{' {
		t.Fatalf("proto message encoded as JSON")
	}
	out := &healthpb.HealthCheckRequest{}
	if err := (Codec{}).Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.GetService() != in.GetService() {
		t.Fatalf("unexpected service %q", out.GetService())
	}
}

func TestCodecEmptyPayload(t *testing.T) {
	var req HealthRequest
	if err := (Codec{}).Unmarshal(nil, &req); err != nil {
		t.Fatalf("empty payload should decode: %v", err)
	}
}
