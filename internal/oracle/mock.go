package oracle

import (
	"context"

	"github.com/solguard/riskengine/internal/schema"
)

// Mock is an in-memory MarketDataOracle for tests.
type Mock struct {
	Overviews map[string]Overview
	History   map[string][]PricePoint
	Holders   map[string][]schema.Holder
	Err       error
}

// NewMock returns an empty Mock ready for fixtures to be assigned.
func NewMock() *Mock {
	return &Mock{
		Overviews: map[string]Overview{},
		History:   map[string][]PricePoint{},
		Holders:   map[string][]schema.Holder{},
	}
}

func (m *Mock) Overview(_ context.Context, mint string) (Overview, error) {
	if m.Err != nil {
		return Overview{}, m.Err
	}
	return m.Overviews[mint], nil
}

func (m *Mock) PriceHistory(_ context.Context, mint string, _ int) ([]PricePoint, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.History[mint], nil
}

func (m *Mock) TopHolders(_ context.Context, mint string) ([]schema.Holder, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Holders[mint], nil
}
