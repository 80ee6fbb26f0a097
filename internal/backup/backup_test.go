package backup

import (
	"errors"
	"testing"
	"time"

	"loanbook/internal/core"
)

var current = core.NewMonthKey(2024, time.March)

func TestEncodeEmpty(t *testing.T) {
	for _, in := range [][]core.Loan{nil, {}} {
		b, err := Encode(in)
		if err != nil || string(b) != "[]" {
			t.Fatalf("Encode(%v) = %s, %v", in, b, err)
		}
	}
}

func TestRoundTripIsByteStable(t *testing.T) {
	k := core.NewMonthKey(2024, time.February)
	loans := []core.Loan{
		{ID: 1706659200000, Name: "Ana", Amount: core.Money{Cents: 500000}, Interest: core.Money{Cents: 5000}, StartDate: core.NewDate(2024, 1, 31), DueDay: 31, LastCollectedMonth: &k},
		{ID: 1706659200001, Name: "Bo", Amount: core.Money{Cents: 12345}, StartDate: core.NewDate(2023, 11, 5), DueDay: 5},
	}
	first, err := Encode(loans)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(first, current)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	second, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("round trip changed payload:\n%s\n%s", first, second)
	}
}

func TestDecodeLegacyPayload(t *testing.T) {
	// Shape written by the browser version of the tracker.
	in := `[{"id":1700000000000,"name":"Carla","amount":1000,"interest":25.5,"startDate":"2023-10-31","dueDay":31,"lastCollectedMonth":"2024-0"},
	        {"id":1700000000001,"name":"Dario","amount":0,"interest":0,"startDate":"","dueDay":1,"lastCollectedMonth":null}]`
	loans, err := Decode([]byte(in), current)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(loans) != 2 {
		t.Fatalf("got %d loans", len(loans))
	}
	if loans[0].Interest.Cents != 2550 || *loans[0].LastCollectedMonth != core.NewMonthKey(2024, time.January) {
		t.Fatalf("unexpected first loan %+v", loans[0])
	}
	if !loans[1].StartDate.IsZero() || loans[1].LastCollectedMonth != nil {
		t.Fatalf("unexpected second loan %+v", loans[1])
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ``},
		{"not json", `hello`},
		{"object", `{"loans":[]}`},
		{"truncated", `[{"id":1,"name":"a"`},
		{"duplicate id", `[{"id":1,"name":"a","amount":1,"interest":0,"startDate":"2024-01-01","dueDay":1},{"id":1,"name":"b","amount":1,"interest":0,"startDate":"2024-01-01","dueDay":1}]`},
		{"due day zero", `[{"id":1,"name":"a","amount":1,"interest":0,"startDate":"2024-01-01","dueDay":0}]`},
		{"due day 32", `[{"id":1,"name":"a","amount":1,"interest":0,"startDate":"2024-01-01","dueDay":32}]`},
		{"bad date", `[{"id":1,"name":"a","amount":1,"interest":0,"startDate":"01/01/2024","dueDay":1}]`},
		{"bad month key", `[{"id":1,"name":"a","amount":1,"interest":0,"startDate":"2024-01-01","dueDay":1,"lastCollectedMonth":"2024-12"}]`},
		{"negative amount", `[{"id":1,"name":"a","amount":-5,"interest":0,"startDate":"2024-01-01","dueDay":1}]`},
		{"collected next month", `[{"id":1,"name":"a","amount":1,"interest":0,"startDate":"2024-01-01","dueDay":1,"lastCollectedMonth":"2024-3"}]`},
		{"collected next year", `[{"id":1,"name":"a","amount":1,"interest":0,"startDate":"2024-01-01","dueDay":1,"lastCollectedMonth":"2025-0"}]`},
		{"blank name", `[{"id":1,"name":"  ","amount":1,"interest":0,"startDate":"2024-01-01","dueDay":1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.in), current); !errors.Is(err, ErrInvalidData) {
				t.Errorf("Decode() error = %v, want ErrInvalidData", err)
			}
		})
	}
}

func TestDecodeEmptyArray(t *testing.T) {
	loans, err := Decode([]byte(" [ ] "), current)
	if err != nil || loans == nil || len(loans) != 0 {
		t.Fatalf("Decode([]) = %v, %v", loans, err)
	}
}

func TestValidateCollectedMonth(t *testing.T) {
	tests := []struct {
		name    string
		month   core.MonthKey
		wantErr bool
	}{
		{"last year", core.NewMonthKey(2023, time.December), false},
		{"current month", current, false},
		{"next month", current + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.month
			loans := []core.Loan{{ID: 1, Name: "Ana", StartDate: core.NewDate(2023, 1, 5), DueDay: 5, LastCollectedMonth: &m}}
			err := Validate(loans, current)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidData) {
				t.Errorf("Validate() error = %v, want ErrInvalidData", err)
			}
		})
	}
}
