package catalog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"recibos/pkg/platform/sentinel"
)

type fakeStore struct {
	files map[string][]File
	data  map[string][]byte
	err   error
	block bool
}

func (f *fakeStore) Find(ctx context.Context, name string) ([]File, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.files[name], nil
}

func (f *fakeStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	d, ok := f.data[ref]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(d)), nil
}

type CatalogSuite struct {
	suite.Suite
	ctx   context.Context
	store *fakeStore
	cat   *Catalog
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}

func (s *CatalogSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = &fakeStore{
		files: map[string][]File{
			"30111222.pdf": {
				{Ref: "11-2024/30111222.pdf", Folder: "11-2024"},
				{Ref: "03-2025/30111222.pdf", Folder: "03-2025"},
				{Ref: "borradores/30111222.pdf", Folder: "borradores"},
				{Ref: "01-2025/30111222.pdf", Folder: "01-2025"},
				{Ref: "copia/03-2025/30111222.pdf", Folder: "03-2025"},
			},
		},
		data: map[string][]byte{"03-2025/30111222.pdf": []byte("%PDF-1.4")},
	}
	s.cat = New(s.store)
}

// =============================================================================
// Periods
// =============================================================================

func (s *CatalogSuite) TestPeriodParsing() {
	s.Run("folder names map to labels", func() {
		p, ok := ParseFolder("03-2025")
		s.Require().True(ok)
		s.Equal("03/2025", p.String())
		s.Equal("03-2025", p.Folder())
	})

	s.Run("non matching folders are rejected", func() {
		for _, name := range []string{"borradores", "3-2025", "13-2025", "03_2025", "03-25"} {
			_, ok := ParseFolder(name)
			s.False(ok, name)
		}
	})

	s.Run("labels accept either separator", func() {
		s.Equal(MustParseLabel("03/2025"), MustParseLabel("03-2025"))
		s.Equal(MustParseLabel("3/2025"), MustParseLabel("03/2025"))
	})

	s.Run("invalid labels fail validation", func() {
		_, err := ParseLabel("marzo")
		s.Error(err)
		_, err = ParseLabel("00/2025")
		s.Error(err)
	})

	s.Run("label lists are split and canonicalized", func() {
		labels, err := ParseLabels([]string{"03-2025, 3/2025", "04/2025", ""})
		s.Require().NoError(err)
		s.Equal([]string{"03/2025", "04/2025"}, labels)

		labels, err = ParseLabels(nil)
		s.Require().NoError(err)
		s.Empty(labels)

		_, err = ParseLabels([]string{"03/2025,marzo"})
		s.Error(err)
	})
}

func (s *CatalogSuite) TestListPeriods() {
	s.Run("newest first, deduplicated, junk folders dropped", func() {
		periods, err := s.cat.ListPeriods(s.ctx, "30111222")
		s.Require().NoError(err)
		s.Equal([]string{"03/2025", "01/2025", "11/2024"}, Labels(periods))
	})

	s.Run("unknown document has no periods", func() {
		periods, err := s.cat.ListPeriods(s.ctx, "99")
		s.Require().NoError(err)
		s.Empty(periods)
	})
}

// =============================================================================
// Documents
// =============================================================================

func (s *CatalogSuite) TestFindDocument() {
	s.Run("first match wins and lookups are repeatable", func() {
		first, err := s.cat.FindDocument(s.ctx, "30111222", MustParseLabel("03/2025"))
		s.Require().NoError(err)
		second, err := s.cat.FindDocument(s.ctx, "30111222", MustParseLabel("03-2025"))
		s.Require().NoError(err)
		s.Equal("03-2025/30111222.pdf", first)
		s.Equal(first, second)
	})

	s.Run("missing period is not found", func() {
		_, err := s.cat.FindDocument(s.ctx, "30111222", MustParseLabel("02/2025"))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("store failure is unavailable", func() {
		s.store.err = errors.New("permission denied")
		_, err := s.cat.FindDocument(s.ctx, "30111222", MustParseLabel("03/2025"))
		s.ErrorIs(err, sentinel.ErrUnavailable)
		s.NotErrorIs(err, sentinel.ErrNotFound)
		s.store.err = nil
	})

	s.Run("timeout is unavailable", func() {
		blocking := New(&fakeStore{block: true}, WithTimeout(10*time.Millisecond))
		_, err := blocking.FindDocument(s.ctx, "30111222", MustParseLabel("03/2025"))
		s.ErrorIs(err, sentinel.ErrUnavailable)
	})
}

func (s *CatalogSuite) TestOpen() {
	data, err := s.cat.Open(s.ctx, "03-2025/30111222.pdf")
	s.Require().NoError(err)
	s.Equal([]byte("%PDF-1.4"), data)

	_, err = s.cat.Open(s.ctx, "nope")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
