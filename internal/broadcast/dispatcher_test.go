package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"recibos/internal/ackstate"
	"recibos/internal/catalog"
	"recibos/internal/ledger"
	"recibos/internal/registry"
	"recibos/internal/transport"
	"recibos/internal/transport/mocks"
	dErrors "recibos/pkg/domain-errors"
	"recibos/pkg/platform/sentinel"
)

type rowsSource []registry.Row

func (r rowsSource) Load(context.Context) ([]registry.Row, error) { return r, nil }

// fileStore holds "<folder>/<document>.pdf" refs.
type fileStore struct {
	refs []string
	err  error
}

func (f *fileStore) Find(_ context.Context, name string) ([]catalog.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []catalog.File
	for _, ref := range f.refs {
		folder, file, _ := strings.Cut(ref, "/")
		if file == name {
			out = append(out, catalog.File{Ref: ref, Folder: folder})
		}
	}
	return out, nil
}

func (f *fileStore) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("%PDF")), nil
}

// =============================================================================
// Dispatcher Test Suite
// =============================================================================

type DispatcherSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	sender   *mocks.MockSender
	docs     *fileStore
	ledgerDB *ledger.InMemory
	ledger   *ledger.Service
	acks     *ackstate.InMemory
	rows     []registry.Row
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.sender = mocks.NewMockSender(s.ctrl)
	s.docs = &fileStore{refs: []string{"03-2025/100.pdf", "03-2025/200.pdf", "03-2025/300.pdf", "02-2025/400.pdf"}}
	s.ledgerDB = ledger.NewInMemory()
	s.ledger = ledger.NewService(s.ledgerDB)
	s.acks = ackstate.NewInMemory()
	s.rows = []registry.Row{
		{DisplayName: "Ana", RawPhone: "11 1111-1111", Phone: "1111111111", DocumentID: "100"},
		{DisplayName: "Beto", RawPhone: "11 2222-2222", Phone: "1122222222", DocumentID: "200"},
		{DisplayName: "Sin documento", RawPhone: "11 3333-3333", Phone: "1133333333", DocumentID: ""},
		{DisplayName: "Corto", RawPhone: "1234", Phone: "1234", DocumentID: "300"},
		{DisplayName: "Otro periodo", RawPhone: "11 4444-4444", Phone: "1144444444", DocumentID: "400"},
		{DisplayName: "Ana duplicada", RawPhone: "+54 9 11 1111-1111", Phone: "1111111111", DocumentID: "100"},
	}
}

func (s *DispatcherSuite) dispatcher(opts ...Option) *Dispatcher {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	d, err := New(Dependencies{
		Directory: registry.NewResolver(rowsSource(s.rows)),
		Catalog:   catalog.New(s.docs),
		Ledger:    s.ledger,
		Sender:    s.sender,
		Acks:      ackstate.NewService(s.acks),
	}, opts...)
	s.Require().NoError(err)
	return d
}

func (s *DispatcherSuite) TestRunSendsTemplateAndLinksPendingView() {
	first := s.sender.EXPECT().
		Send(gomock.Any(), transport.Message{To: "11 1111-1111", TemplateSID: "HX1", Variables: map[string]string{"1": "Ana", "2": "03/2025"}}).
		Return("SM100", nil)
	s.sender.EXPECT().
		Send(gomock.Any(), transport.Message{To: "11 2222-2222", TemplateSID: "HX1", Variables: map[string]string{"1": "Beto", "2": "03/2025"}}).
		Return("SM200", nil).
		After(first)

	summary, err := s.dispatcher(WithTemplate("HX1")).Run(s.ctx, Options{Period: "3/2025"})
	s.Require().NoError(err)

	s.Equal("03/2025", summary.Period)
	s.Equal(6, summary.Total)
	s.Equal(2, summary.Sent)
	s.Equal(4, summary.Skipped)
	s.Equal(map[Outcome]int{
		OutcomeSent:          2,
		OutcomeMissingFields: 2,
		OutcomeNoDocument:    1,
		OutcomeDuplicate:     1,
	}, summary.Outcomes)

	rec, err := s.ledger.Delivery(s.ctx, "SM100")
	s.Require().NoError(err)
	s.Equal(ledger.KindTemplate, rec.Kind)
	s.Equal("1111111111", rec.Recipient)
	s.Equal("Ana", rec.DisplayName)

	view, err := s.ledger.PendingFor(s.ctx, "1122222222")
	s.Require().NoError(err)
	s.Equal("200", view.DocumentID)
	s.Equal("03/2025", view.Period)
}

func (s *DispatcherSuite) TestRunFallsBackToPlainBody() {
	s.rows = s.rows[:1]
	s.sender.EXPECT().
		Send(gomock.Any(), transport.Message{To: "11 1111-1111", Body: "Ana: 03/2025"}).
		Return("SM1", nil)

	summary, err := s.dispatcher(WithBody("{nombre}: {periodo}")).Run(s.ctx, Options{Period: "03/2025"})
	s.Require().NoError(err)
	s.Equal(1, summary.Sent)
}

func (s *DispatcherSuite) TestDryRunNeverSends() {
	s.Require().NoError(s.acks.Set(s.ctx, ackstate.Key{DocumentID: "200", Period: "03/2025"}, ackstate.StateSigned))

	summary, err := s.dispatcher().Run(s.ctx, Options{Period: "03/2025", DryRun: true})
	s.Require().NoError(err)

	s.True(summary.DryRun)
	s.Equal(2, summary.Outcomes[OutcomeWouldSend])
	states := map[string]string{}
	for _, r := range summary.Results {
		if r.Outcome == OutcomeWouldSend {
			states[r.DocumentID] = r.State
		}
	}
	s.Equal(map[string]string{"100": "AVAILABLE", "200": "SIGNED"}, states)

	deliveries, err := s.ledgerDB.ListDeliveries(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(deliveries)
	_, err = s.ledger.PendingFor(s.ctx, "1111111111")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *DispatcherSuite) TestLimitCapsSends() {
	s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return("SM1", nil).Times(1)

	summary, err := s.dispatcher().Run(s.ctx, Options{Period: "03/2025", Limit: 1})
	s.Require().NoError(err)
	s.True(summary.Limited)
	s.Equal(1, summary.Sent)
	s.Equal(1, summary.Outcomes[OutcomeLimitReached])
}

func (s *DispatcherSuite) TestLimitCountsSuccessfulSends() {
	gomock.InOrder(
		s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return("", &transport.APIError{Status: 400, Code: 63016}),
		s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return("SM2", nil),
	)

	summary, err := s.dispatcher().Run(s.ctx, Options{Period: "03/2025", Limit: 1})
	s.Require().NoError(err)
	s.Equal(1, summary.Sent)
	s.Equal(1, summary.Outcomes[OutcomeSendError])
	s.Equal(0, summary.Outcomes[OutcomeLimitReached])
	s.False(summary.Limited)
}

func (s *DispatcherSuite) TestSendFailures() {
	s.Run("retryable error retried once", func() {
		s.rows = s.rows[:1]
		gomock.InOrder(
			s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return("", fmt.Errorf("send: %w", sentinel.ErrUnavailable)),
			s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return("SM9", nil),
		)
		summary, err := s.dispatcher().Run(s.ctx, Options{Period: "03/2025"})
		s.Require().NoError(err)
		s.Equal(1, summary.Sent)
	})

	s.Run("rejection recorded as skip", func() {
		s.rows = s.rows[:1]
		s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return("", &transport.APIError{Status: 400, Code: 63016})
		summary, err := s.dispatcher().Run(s.ctx, Options{Period: "03/2025"})
		s.Require().NoError(err)
		s.Equal(0, summary.Sent)
		s.Equal(1, summary.Outcomes[OutcomeSendError])
		s.NotEmpty(summary.Results[0].Error)
	})
}

func (s *DispatcherSuite) TestDocumentStoreFailureIsPerRow() {
	s.docs.err = errors.New("disk detached")
	summary, err := s.dispatcher().Run(s.ctx, Options{Period: "03/2025"})
	s.Require().NoError(err)
	s.Equal(0, summary.Sent)
	s.Equal(3, summary.Outcomes[OutcomeDocstoreError])
}

func (s *DispatcherSuite) TestInvalidOptions() {
	_, err := s.dispatcher().Run(s.ctx, Options{Period: "marzo"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.dispatcher().Run(s.ctx, Options{Period: "03/2025", Limit: -1})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = New(Dependencies{})
	s.Error(err)
}
