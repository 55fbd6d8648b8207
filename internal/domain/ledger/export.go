package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
)

var csvHeader = []string{"Date", "Title", "Type", "Category", "Amount", "Account", "Note"}

// ExportCSV writes every transaction as one CSV row in the fixed column
// order Date, Title, Type, Category, Amount, Account, Note.
func (s *Service) ExportCSV(w io.Writer) error {
	txs, err := s.Transactions()
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, tx := range txs {
		row := []string{
			tx.Date.Format("2006-01-02"),
			tx.Title,
			tx.Type,
			tx.Category,
			tx.Amount.String(),
			tx.Account,
			tx.Note,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
