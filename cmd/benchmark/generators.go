package main

import (
	"math/rand"
	"time"

	"github.com/lychee-technology/hydra"
)

var (
	words = []string{"red", "green", "blue", "black", "white", "silver", "amber", "teal"}
	tags  = []string{"sale", "new", "featured", "clearance", "limited"}
	epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

type row struct {
	id  int64
	typ hydra.EntityType
}

func (r row) ID() int64              { return r.id }
func (r row) IsPersisted() bool      { return r.id != 0 }
func (r row) Type() hydra.EntityType { return r.typ }

// valueGenerator produces random decoded values per backend type.
type valueGenerator struct {
	random        *rand.Rand
	referenceType string
	maxReference  int
}

func newValueGenerator(random *rand.Rand, referenceType string, maxReference int) *valueGenerator {
	if maxReference < 1 {
		maxReference = 1
	}
	return &valueGenerator{random: random, referenceType: referenceType, maxReference: maxReference}
}

// next returns a value for backendType, or false when nothing should be written.
func (g *valueGenerator) next(backendType hydra.BackendType) (any, bool) {
	switch backendType {
	case hydra.BackendTypeText:
		return words[g.random.Intn(len(words))], true
	case hydra.BackendTypeNumeric:
		return float64(g.random.Intn(100000)) / 100, true
	case hydra.BackendTypeDate:
		return epoch.Add(time.Duration(g.random.Intn(365*24)) * time.Hour), true
	case hydra.BackendTypeEnumerated:
		n := 1 + g.random.Intn(len(tags))
		picked := make([]any, 0, n)
		for _, i := range g.random.Perm(len(tags))[:n] {
			picked = append(picked, tags[i])
		}
		return picked, true
	case hydra.BackendTypePolymorphicReference:
		if g.referenceType == "" {
			return nil, false
		}
		return row{
			id:  int64(1 + g.random.Intn(g.maxReference)),
			typ: hydra.EntityType{Name: g.referenceType},
		}, true
	default:
		return nil, false
	}
}
