// Package demo holds the operations served by the soagw command when no
// application registers its own.
package demo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/broady/soagw"
)

// Register adds every demo operation to gw.
func Register(gw *soagw.Gateway) error {
	for name, sample := range map[string]any{
		"Echo":   Echo{},
		"Quote":  Quote{},
		"Status": Status{},
	} {
		if err := gw.Register(name, sample); err != nil {
			return fmt.Errorf("demo: %w", err)
		}
	}
	return nil
}

// Echo repeats a message.
type Echo struct {
	Message string `xsd:"order:1;maxLength:100"`
	Times   int    `xsd:"order:2;minInclusive:1;maxInclusive:10"`
}

// EchoResult carries the repeated message.
type EchoResult struct {
	Messages []string `xsd:"order:1;minOccurs:0"`
}

func (e *Echo) Response(ctx context.Context) (*EchoResult, error) {
	out := &EchoResult{Messages: make([]string, e.Times)}
	for i := range out.Messages {
		out.Messages[i] = e.Message
	}
	return out, nil
}

// Address is a delivery address.
type Address struct {
	Street   string `xsd:"order:1;maxLength:100"`
	City     string `xsd:"order:2;maxLength:50"`
	Postcode string `xsd:"order:3;pattern:[A-Z0-9 ]{3,10}"`
}

// Line is one product of a quote.
type Line struct {
	SKU      string  `xsd:"order:1;pattern:[A-Z]{3}-[0-9]{4}"`
	Quantity int     `xsd:"order:2;minInclusive:1"`
	Price    float64 `xsd:"order:3;minExclusive:0"`
}

// Card pays with a card.
type Card struct {
	Number string `xsd:"order:1;pattern:[0-9]{16}"`
}

// Invoice pays on account.
type Invoice struct {
	Account string `xsd:"order:1;maxLength:20"`
}

// Payment is exactly one of its members.
type Payment struct {
	Card    *Card    `xsd:"choice"`
	Invoice *Invoice `xsd:"choice"`
}

// Quote prices an order.
type Quote struct {
	Customer string     `xsd:"order:1;minLength:1;maxLength:50"`
	Delivery soagw.Date `xsd:"order:2"`
	Ship     *Address   `xsd:"order:3;minOccurs:0"`
	Lines    []Line     `xsd:"order:4"`
	Payment  Payment    `xsd:"order:5"`
	Priority string     `xsd:"order:6;minOccurs:0;enumeration:LOW,NORMAL,HIGH"`
}

// QuoteResult is the priced order.
type QuoteResult struct {
	Customer   string     `xsd:"order:1"`
	Total      float64    `xsd:"order:2"`
	Lines      int        `xsd:"order:3"`
	ValidUntil soagw.Date `xsd:"order:4"`
	Issued     time.Time  `xsd:"order:5"`
}

// ErrEmptyQuote reports a quote without lines.
var ErrEmptyQuote = errors.New("quote has no lines")

// now is replaced in tests.
var now = time.Now

func (q *Quote) Response(ctx context.Context) (*QuoteResult, error) {
	if len(q.Lines) == 0 {
		return nil, soagw.NewFault(soagw.CodeClient, ErrEmptyQuote.Error())
	}
	var total float64
	for _, l := range q.Lines {
		total += float64(l.Quantity) * l.Price
	}
	if q.Payment.Invoice != nil {
		total *= 1.02
	}
	if q.Priority == "HIGH" {
		total += 25
	}
	issued := now().UTC().Truncate(time.Second)
	return &QuoteResult{
		Customer:   q.Customer,
		Total:      math.Round(total*100) / 100,
		Lines:      len(q.Lines),
		ValidUntil: soagw.NewDate(issued.Year(), issued.Month(), issued.Day()+30),
		Issued:     issued,
	}, nil
}

// Status reports whether a subsystem is healthy. Its properties are
// accessor pairs rather than tagged fields.
type Status struct {
	subsystem string
	verbose   bool
}

func (s *Status) Subsystem() string     { return s.subsystem }
func (s *Status) SetSubsystem(v string) { s.subsystem = v }
func (s *Status) Verbose() bool         { return s.verbose }
func (s *Status) SetVerbose(v bool)     { s.verbose = v }

func (*Status) XSDTags() map[string]string {
	return map[string]string{
		"Subsystem": "order:1;enumeration:db,cache,queue",
		"Verbose":   "order:2;minOccurs:0",
	}
}

func (s *Status) Response(ctx context.Context) (*soagw.ErrorResponse, error) {
	if strings.EqualFold(s.subsystem, "queue") {
		return soagw.NewErrorResponse("503", "queue is draining"), nil
	}
	msg := "ok"
	if s.verbose {
		msg = s.subsystem + " is healthy"
	}
	return soagw.NewErrorResponse("0", msg), nil
}
