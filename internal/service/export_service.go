package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/lensbook-api/internal/dto"
	"github.com/noah-isme/lensbook-api/internal/models"
	appErrors "github.com/noah-isme/lensbook-api/pkg/errors"
	"github.com/noah-isme/lensbook-api/pkg/export"
)

type exportReservationReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Reservation, error)
	ListForLedger(ctx context.Context, photographerID string, from, to *time.Time) ([]models.Reservation, error)
}

type exportChangeRequestReader interface {
	ListByReservation(ctx context.Context, reservationID string) ([]models.ChangeRequest, error)
}

type csvRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(receipt export.Receipt) ([]byte, error)
}

// ExportService renders booking receipts and photographer earnings ledgers.
type ExportService struct {
	reservations   exportReservationReader
	changeRequests exportChangeRequestReader
	csv            csvRenderer
	pdf            pdfRenderer
	logger         *zap.Logger
	now            func() time.Time
}

// NewExportService constructs the export service.
func NewExportService(reservations exportReservationReader, changeRequests exportChangeRequestReader, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if csv == nil {
		csv = export.NewCSVWriter()
	}
	if pdf == nil {
		pdf = export.NewReceiptRenderer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		reservations:   reservations,
		changeRequests: changeRequests,
		csv:            csv,
		pdf:            pdf,
		logger:         logger,
		now:            time.Now,
	}
}

// Receipt renders the PDF receipt of a reservation for its parties and admins.
func (s *ExportService) Receipt(ctx context.Context, reservationID string, actor models.Principal) ([]byte, string, error) {
	r, err := s.reservations.FindByID(ctx, nil, reservationID)
	if err != nil {
		return nil, "", notFoundOr(err, "reservation not found", "failed to load reservation")
	}
	if !isParty(r, actor) && !actor.IsAdmin() {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "reservation belongs to other users")
	}

	booking := export.ReceiptSection{Heading: "Booking", Lines: []export.ReceiptLine{
		{Label: "Client", Value: r.ClientID},
		{Label: "Photographer", Value: r.PhotographerID},
		{Label: "Date", Value: r.EventDate.Format(dto.DateLayout)},
		{Label: "Time", Value: r.EventTime},
		{Label: "Location", Value: r.EventLocation},
		{Label: "Status", Value: string(r.Status)},
		{Label: "Payment proof", Value: string(r.ProofStatus)},
	}}
	payment := export.ReceiptSection{Heading: "Payment", Lines: []export.ReceiptLine{
		{Label: "Amount", Value: money(r.Amount, r.Currency)},
		{Label: "Platform commission", Value: money(r.Commission, r.Currency)},
		{Label: "Photographer net", Value: money(r.Amount.Sub(r.Commission), r.Currency)},
	}}
	if s.changeRequests != nil {
		requests, err := s.changeRequests.ListByReservation(ctx, r.ID)
		if err != nil {
			return nil, "", internalError(err, "failed to load change requests")
		}
		for _, cr := range requests {
			if cr.Kind == models.ChangeRequestKindCancellation && cr.Status == models.ChangeRequestStatusApproved {
				payment.Lines = append(payment.Lines, export.ReceiptLine{Label: "Cancellation penalty", Value: money(cr.Penalty, r.Currency)})
			}
		}
	}

	pdf, err := s.pdf.Render(export.Receipt{
		Title:     "Booking receipt",
		Reference: r.ID,
		IssuedAt:  s.now().UTC(),
		Sections:  []export.ReceiptSection{booking, payment},
		Footer:    "Amounts are expressed in " + r.Currency + ".",
	})
	if err != nil {
		return nil, "", internalError(err, "failed to render receipt")
	}
	return pdf, fmt.Sprintf("receipt-%s.pdf", r.ID), nil
}

// Ledger renders the photographer's confirmed and completed bookings as CSV.
func (s *ExportService) Ledger(ctx context.Context, photographerID string, query dto.LedgerQuery, actor models.Principal) ([]byte, string, error) {
	if actor.UserID != photographerID && !actor.IsAdmin() {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "ledger belongs to another photographer")
	}
	var from, to *time.Time
	if query.From != "" {
		d, err := parseDate(query.From)
		if err != nil {
			return nil, "", err
		}
		from = &d
	}
	if query.To != "" {
		d, err := parseDate(query.To)
		if err != nil {
			return nil, "", err
		}
		to = &d
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}

	reservations, err := s.reservations.ListForLedger(ctx, photographerID, from, to)
	if err != nil {
		return nil, "", internalError(err, "failed to load ledger")
	}
	table := export.Table{Columns: []string{"reservation_id", "event_date", "status", "currency", "amount", "commission", "net"}}
	for _, r := range reservations {
		table.Rows = append(table.Rows, []string{
			r.ID,
			r.EventDate.Format(dto.DateLayout),
			string(r.Status),
			r.Currency,
			r.Amount.StringFixed(MinorUnits(r.Currency)),
			r.Commission.StringFixed(MinorUnits(r.Currency)),
			r.Amount.Sub(r.Commission).StringFixed(MinorUnits(r.Currency)),
		})
	}
	data, err := s.csv.Render(table)
	if err != nil {
		return nil, "", internalError(err, "failed to render ledger")
	}
	return data, fmt.Sprintf("ledger-%s-%s.csv", photographerID, s.now().UTC().Format("20060102")), nil
}

func money(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(MinorUnits(currency)) + " " + currency
}
