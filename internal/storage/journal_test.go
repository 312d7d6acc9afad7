package storage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"escrowScope/internal/model"
)

func TestJournalAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	journal := NewJournal(path)

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	events := []model.Event{
		model.Accepted{
			EventMeta:  model.EventMeta{Chain: model.ChainBase, EscrowID: "1", Ref: "0x01:0", TxRef: "0x01", Position: 10, Timestamp: ts},
			Provider:   "0x2222222222222222222222222222222222222222",
			AcceptedAt: ts,
		},
		model.Expired{
			EventMeta:    model.EventMeta{Chain: model.ChainSolana, EscrowID: "E1", Ref: "sig:0", TxRef: "sig", Position: 11, Timestamp: ts},
			RefundAmount: "10",
			ExpiredAt:    ts,
		},
	}
	if err := journal.Append(events[:1]); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := journal.Append(events[1:]); err != nil {
		t.Fatalf("append: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var got []model.Event
	err = ReadJournal(context.Background(), file, func(ev model.Event) error {
		got = append(got, ev)
		return nil
	}, func(line int, err error) {
		t.Fatalf("line %d: %v", line, err)
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, events) {
		t.Fatalf("events mismatch: %+v != %+v", got, events)
	}
}

func TestReadJournalSkipsBadLines(t *testing.T) {
	input := strings.Join([]string{
		`{"kind":"Cancelled","event":{"chain":"base","escrow_address":"3","ref":"0x03:0","tx":"0x03","position":1,"timestamp":"2025-01-01T00:00:00Z","client":"0x1","cancelled_at":"2025-01-01T00:00:00Z"}}`,
		`not json`,
		``,
		`{"kind":"Bogus","event":{}}`,
	}, "\n")

	var count, bad int
	err := ReadJournal(context.Background(), strings.NewReader(input), func(ev model.Event) error {
		count++
		if ev.Kind() != model.KindCancelled {
			t.Fatalf("unexpected kind %s", ev.Kind())
		}
		return nil
	}, func(int, error) { bad++ })
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if count != 1 || bad != 2 {
		t.Fatalf("count=%d bad=%d", count, bad)
	}
}
