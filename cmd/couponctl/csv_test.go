package main

import (
	"strings"
	"testing"
)

func TestParseInstallmentCSVGroupsByStudent(t *testing.T) {
	input := `student_id,period,amount,due_date
6f1c1d4e-7a53-4c2b-9d7e-0c4b1f2a3b4c,2025-03,50.00,2025-03-01
0b6f3e1a-2c4d-4e5f-8a9b-1c2d3e4f5a6b,2025-03,75.50,2025-03-01
6f1c1d4e-7a53-4c2b-9d7e-0c4b1f2a3b4c,2025-04,50.00,2025-04-01
`
	batches, err := parseInstallmentCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if got := len(batches[0].Inputs); got != 2 {
		t.Fatalf("first student has %d installments, want 2", got)
	}
	if batches[1].Inputs[0].Amount.StringFixed(2) != "75.50" {
		t.Fatalf("amount = %s", batches[1].Inputs[0].Amount)
	}
	if batches[0].Inputs[1].DueDate.Month() != 4 {
		t.Fatalf("due date = %s", batches[0].Inputs[1].DueDate)
	}
}

func TestParseInstallmentCSVRejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"header":  "id,period,amount,due\n",
		"student": "student_id,period,amount,due_date\nnope,2025-03,50,2025-03-01\n",
		"amount":  "student_id,period,amount,due_date\n6f1c1d4e-7a53-4c2b-9d7e-0c4b1f2a3b4c,2025-03,fifty,2025-03-01\n",
		"date":    "student_id,period,amount,due_date\n6f1c1d4e-7a53-4c2b-9d7e-0c4b1f2a3b4c,2025-03,50,03/01/2025\n",
	}
	for name, input := range cases {
		if _, err := parseInstallmentCSV(strings.NewReader(input)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
