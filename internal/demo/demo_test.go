package demo

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"

	"github.com/broady/soagw"
	"github.com/broady/soagw/envelope"
	"github.com/broady/soagw/testutil"
)

func newGateway(t *testing.T) *soagw.Gateway {
	t.Helper()
	gw := soagw.New("urn:demo").WithLogger(slog.New(slog.DiscardHandler))
	if err := Register(gw); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return gw
}

func call(t *testing.T, gw *soagw.Gateway, op, payload string) *envelope.Envelope {
	t.Helper()
	out := gw.Dispatch(context.Background(), op, strings.NewReader(testutil.Envelope(payload)))
	env, err := envelope.ParseBytes(out)
	if err != nil {
		t.Fatalf("unparseable response: %v\n%s", err, out)
	}
	return env
}

func texts(el *etree.Element) map[string]string {
	out := map[string]string{}
	for _, c := range el.ChildElements() {
		out[c.Tag] = c.Text()
	}
	return out
}

func TestRegister(t *testing.T) {
	gw := newGateway(t)
	if diff := cmp.Diff([]string{"Echo", "Quote", "Status"}, gw.Operations()); diff != "" {
		t.Errorf("Operations() mismatch (-want +got):\n%s", diff)
	}
	for _, op := range gw.Operations() {
		if _, err := gw.Description(op, "http://localhost/soap"); err != nil {
			t.Errorf("Description(%s) error = %v", op, err)
		}
	}
}

func TestEcho(t *testing.T) {
	gw := newGateway(t)

	env := call(t, gw, "Echo", `<Echo xmlns="urn:demo"><Message>hi</Message><Times>2</Times></Echo>`)
	payload := env.Payload()
	if payload.Tag != "EchoResult" {
		t.Fatalf("payload = %s", payload.Tag)
	}
	var got []string
	for _, m := range payload.FindElements("ArrayOfMessages/Messages") {
		got = append(got, m.Text())
	}
	if diff := cmp.Diff([]string{"hi", "hi"}, got); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}

	env = call(t, gw, "Echo", `<Echo xmlns="urn:demo"><Message>hi</Message><Times>11</Times></Echo>`)
	f, ok := env.Fault()
	if !ok || f.Code != envelope.Client || !strings.Contains(f.String, "maxInclusive") {
		t.Errorf("expected maxInclusive client fault, got %+v", f)
	}
}

func TestQuote(t *testing.T) {
	now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = time.Now })

	gw := newGateway(t)
	env := call(t, gw, "Quote", `<Quote xmlns="urn:demo">
		<Customer>ACME</Customer>
		<Delivery>2026-03-10</Delivery>
		<ArrayOfLines>
			<Lines><SKU>ABC-0001</SKU><Quantity>2</Quantity><Price>9.99</Price></Lines>
			<Lines><SKU>XYZ-0002</SKU><Quantity>1</Quantity><Price>5</Price></Lines>
		</ArrayOfLines>
		<Payment><Invoice><Account>ACC-1</Account></Invoice></Payment>
	</Quote>`)
	if f, ok := env.Fault(); ok {
		t.Fatalf("unexpected fault %s: %s", f.Code, f.String)
	}

	want := map[string]string{
		"Customer":   "ACME",
		"Total":      "25.48",
		"Lines":      "2",
		"ValidUntil": "2026-03-31",
		"Issued":     "2026-03-01T10:00:00",
	}
	if diff := cmp.Diff(want, texts(env.Payload())); diff != "" {
		t.Errorf("QuoteResult mismatch (-want +got):\n%s", diff)
	}
}

func TestQuote_Invalid(t *testing.T) {
	gw := newGateway(t)
	env := call(t, gw, "Quote", `<Quote xmlns="urn:demo">
		<Customer>ACME</Customer>
		<Delivery>2026-03-10</Delivery>
		<ArrayOfLines>
			<Lines><SKU>bad</SKU><Quantity>0</Quantity><Price>1</Price></Lines>
		</ArrayOfLines>
		<Payment><Card><Number>4111111111111111</Number></Card></Payment>
	</Quote>`)
	f, ok := env.Fault()
	if !ok || f.Code != envelope.Client {
		t.Fatalf("expected client fault, got %+v", f)
	}
	lines := strings.Split(f.String, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 failures, got %d:\n%s", len(lines), f.String)
	}
	if !strings.Contains(lines[0], "cvc-pattern-valid") || !strings.Contains(lines[1], "cvc-minInclusive-valid") {
		t.Errorf("unexpected failures:\n%s", f.String)
	}
}

func TestQuote_NoLines(t *testing.T) {
	_, err := (&Quote{Customer: "ACME"}).Response(context.Background())
	var fault *soagw.Fault
	if f, ok := err.(*soagw.Fault); ok {
		fault = f
	}
	if fault == nil || fault.Code != soagw.CodeClient || fault.String != ErrEmptyQuote.Error() {
		t.Errorf("Response() error = %v", err)
	}
}

func TestStatus(t *testing.T) {
	gw := newGateway(t)

	tests := []struct {
		name    string
		payload string
		want    map[string]string
	}{
		{
			"terse",
			`<Status xmlns="urn:demo"><Subsystem>db</Subsystem></Status>`,
			map[string]string{"ErrorCode": "0", "ErrorMessage": "ok"},
		},
		{
			"verbose",
			`<Status xmlns="urn:demo"><Subsystem>cache</Subsystem><Verbose>true</Verbose></Status>`,
			map[string]string{"ErrorCode": "0", "ErrorMessage": "cache is healthy"},
		},
		{
			"draining",
			`<Status xmlns="urn:demo"><Subsystem>queue</Subsystem></Status>`,
			map[string]string{"ErrorCode": "503", "ErrorMessage": "queue is draining"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := call(t, gw, "Status", tt.payload)
			if f, ok := env.Fault(); ok {
				t.Fatalf("unexpected fault %s: %s", f.Code, f.String)
			}
			if env.Payload().Tag != "ErrorResponse" {
				t.Errorf("payload = %s", env.Payload().Tag)
			}
			if diff := cmp.Diff(tt.want, texts(env.Payload())); diff != "" {
				t.Errorf("ErrorResponse mismatch (-want +got):\n%s", diff)
			}
		})
	}

	env := call(t, gw, "Status", `<Status xmlns="urn:demo"><Subsystem>disk</Subsystem></Status>`)
	if f, ok := env.Fault(); !ok || !strings.Contains(f.String, "cvc-enumeration-valid") {
		t.Errorf("expected enumeration fault, got %+v", f)
	}
}
