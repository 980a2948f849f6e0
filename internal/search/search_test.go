package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type item struct {
	name    string
	code    string
	batches []string
}

func (i item) SearchName() string      { return i.name }
func (i item) SearchCode() string      { return i.code }
func (i item) SearchBatches() []string { return i.batches }

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Panadol   EXTRA ", "panadol extra"},
		{"أحمد", "احمد"},
		{"إسلام", "اسلام"},
		{"مدرسة", "مدرسه"},
		{"مستشفى", "مستشفي"},
		{"مؤمن", "مومن"},
		{"قائمة", "قايمه"},
		{"مُحَمَّد", "محمد"},
		{"محـــمد", "محمد"},
		{"Café", "cafe"},
		{"Vit-C 500mg/5ml, (x)", "vit-c 500mg/5ml x"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"panadol", "500"}, Tokenize(" Panadol\t500 "))
	assert.Empty(t, Tokenize("   "))
}

func TestScore(t *testing.T) {
	c := item{name: "Panadol Extra", code: "6221", batches: []string{"LOT-9"}}

	score, ok := Score([]string{"panadol"}, c)
	assert.True(t, ok)
	assert.Equal(t, 30, score)

	score, ok = Score([]string{"extra"}, c)
	assert.True(t, ok)
	assert.Equal(t, 10, score)

	score, ok = Score([]string{"6221"}, c)
	assert.True(t, ok)
	assert.Equal(t, 150, score)

	score, ok = Score([]string{"lot-9"}, c)
	assert.True(t, ok)
	assert.Equal(t, 5, score)

	_, ok = Score([]string{"panadol", "brufen"}, c)
	assert.False(t, ok)
}

func TestSearch_ExactCodeRanksFirst(t *testing.T) {
	items := []item{
		{name: "1234 syrup", code: "912345"},
		{name: "Brufen", code: "12345"},
		{name: "Panadol", code: "12345-b", batches: []string{"12345"}},
	}

	got := Search("12345", items, 0)
	assert.Len(t, got, 3)
	assert.Equal(t, "Brufen", got[0].name)
}

func TestSearch_RequiresEveryToken(t *testing.T) {
	items := []item{
		{name: "Panadol Extra"},
		{name: "Panadol Cold"},
		{name: "Extra Strength Brufen"},
		{name: "Cold Relief", code: "EXTRA-1"},
	}

	got := Search("panadol extra", items, 0)
	assert.Equal(t, []item{{name: "Panadol Extra"}}, got)

	got = Search("cold extra", items, 0)
	assert.Equal(t, []item{{name: "Cold Relief", code: "EXTRA-1"}}, got)
}

func TestSearch_EmptyQueryAndLimit(t *testing.T) {
	items := []item{{name: "a1"}, {name: "a2"}, {name: "a3"}}

	assert.Equal(t, items, Search("  ", items, 1))
	assert.Len(t, Search("a", items, 2), 2)
}

func TestSearch_ArabicFolding(t *testing.T) {
	items := []item{{name: "أموكسيسيلين"}, {name: "بنادول"}}

	got := Search("اموكسيسيلين", items, 0)
	assert.Equal(t, []item{{name: "أموكسيسيلين"}}, got)
}
