package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type installmentBatch struct {
	StudentID uuid.UUID
	Inputs    []services.InstallmentInput
}

var csvHeader = []string{"student_id", "period", "amount", "due_date"}

// parseInstallmentCSV groups rows by student, keeping first-seen order.
func parseInstallmentCSV(r io.Reader) ([]installmentBatch, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(csvHeader) {
		return nil, fmt.Errorf("header must be %s", strings.Join(csvHeader, ","))
	}
	for i, name := range csvHeader {
		if strings.ToLower(strings.TrimSpace(header[i])) != name {
			return nil, fmt.Errorf("header must be %s", strings.Join(csvHeader, ","))
		}
	}

	index := map[uuid.UUID]int{}
	var batches []installmentBatch
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		studentID, err := uuid.Parse(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid student_id: %w", line, err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(record[2]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid amount: %w", line, err)
		}
		due, err := time.Parse("2006-01-02", strings.TrimSpace(record[3]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid due_date: %w", line, err)
		}

		i, ok := index[studentID]
		if !ok {
			i = len(batches)
			index[studentID] = i
			batches = append(batches, installmentBatch{StudentID: studentID})
		}
		batches[i].Inputs = append(batches[i].Inputs, services.InstallmentInput{
			Period:  strings.TrimSpace(record[1]),
			Amount:  amount,
			DueDate: due,
		})
	}
	return batches, nil
}
