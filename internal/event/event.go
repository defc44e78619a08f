package event

import (
	"errors"
	"fmt"

	"go-hep.org/x/hep/fmom"
)

// ErrLeptonCount is returned for a valid dilepton record without exactly two leptons.
var ErrLeptonCount = errors.New("valid dilepton needs exactly two leptons")

// Lepton is a selected lepton of the Z candidate.
type Lepton struct {
	P4     fmom.PtEtaPhiM
	Charge int
}

func NewLepton(pt, eta, phi, m float64, charge int) *Lepton {
	return &Lepton{P4: fmom.NewPtEtaPhiM(pt, eta, phi, m), Charge: charge}
}

func (l *Lepton) Pt() float64 { return l.P4.Pt() }
func (l *Lepton) Eta() float64 { return l.P4.Eta() }

// WeightSet holds named event weights. Producers write disjoint keys.
type WeightSet map[string]float64

// Product is the per-event output record producers read from and write to.
type Product struct {
	// ZValid is set when both leptons of the Z candidate were selected.
	ZValid   bool
	ZLeptons [2]*Lepton
	Weights  WeightSet
}

func NewProduct() *Product {
	return &Product{Weights: WeightSet{}}
}

// Record is the wire form of an event: one JSON object per line.
type Record struct {
	Run     uint64         `json:"run"`
	Lumi    uint64         `json:"lumi"`
	Event   uint64         `json:"event"`
	ZValid  bool           `json:"z_valid"`
	Leptons []LeptonRecord `json:"leptons,omitempty"`
}

type LeptonRecord struct {
	Pt     float64 `json:"pt"`
	Eta    float64 `json:"eta"`
	Phi    float64 `json:"phi"`
	M      float64 `json:"m"`
	Charge int     `json:"charge,omitempty"`
}

// Product converts the record. Leptons of an invalid dilepton are ignored.
func (r Record) Product() (*Product, error) {
	p := NewProduct()
	if !r.ZValid {
		return p, nil
	}
	if len(r.Leptons) != 2 {
		return nil, fmt.Errorf("event %d:%d:%d: %w, got %d", r.Run, r.Lumi, r.Event, ErrLeptonCount, len(r.Leptons))
	}
	p.ZValid = true
	for i, l := range r.Leptons {
		p.ZLeptons[i] = NewLepton(l.Pt, l.Eta, l.Phi, l.M, l.Charge)
	}
	return p, nil
}

// Result is the wire form of the weights computed for one event.
type Result struct {
	Run     uint64    `json:"run"`
	Lumi    uint64    `json:"lumi"`
	Event   uint64    `json:"event"`
	Weights WeightSet `json:"weights"`
}
