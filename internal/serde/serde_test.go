package serde

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/fixture-garden-go/internal/model"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
)

type sdPerson struct {
	ID        int64  `serde:"id,pk"`
	FirstName string `serde:"first_name"`
	LastName  string `serde:"last_name"`
}

func (*sdPerson) ModelLabel() string { return "blog.person" }

type sdAuthor struct {
	sdPerson
	Alias string `serde:"alias"`
}

func (*sdAuthor) ModelLabel() string { return "blog.author" }

type sdCategory struct {
	ID   int64  `serde:"id,pk"`
	Name string `serde:"name"`
}

func (*sdCategory) ModelLabel() string { return "blog.category" }

func (c *sdCategory) NaturalKey() []any { return []any{c.Name} }

type sdTopic struct {
	ID      int64  `serde:"id,pk"`
	Section string `serde:"section"`
	Slug    string `serde:"slug"`
}

func (*sdTopic) ModelLabel() string { return "blog.topic" }

func (t *sdTopic) NaturalKey() []any { return []any{t.Section, t.Slug} }

type sdComment struct {
	ID       int64  `serde:"id,pk"`
	Body     string `serde:"body"`
	Category int64  `serde:"category,fk=blog.category"`
}

func (*sdComment) ModelLabel() string { return "blog.comment" }

type sdArticle struct {
	ID         int64     `serde:"id,pk"`
	Title      string    `serde:"title"`
	Author     int64     `serde:"author,fk=blog.author"`
	Categories []int64   `serde:"categories,m2m=blog.category"`
	PubDate    time.Time `serde:"pub_date"`
	Raw        []byte    `serde:"raw"`
}

func (*sdArticle) ModelLabel() string { return "blog.article" }

func init() {
	model.MustRegister(&sdPerson{})
	model.MustRegister(&sdAuthor{})
	model.MustRegister(&sdCategory{})
	model.MustRegister(&sdTopic{})
	model.MustRegister(&sdComment{})
	model.MustRegister(&sdArticle{})
}

var samplePubDate = time.Date(2025, 11, 3, 8, 0, 0, 0, time.UTC)

func sampleObjects() []model.Model {
	return []model.Model{
		&sdCategory{ID: 1, Name: "go"},
		&sdCategory{ID: 2, Name: "serialization"},
		&sdAuthor{
			sdPerson: sdPerson{ID: 7, FirstName: "Ada", LastName: "Wong"},
			Alias:    "ada",
		},
		&sdArticle{
			ID:         100,
			Title:      "Streaming fixtures",
			Author:     7,
			Categories: []int64{1, 2},
			PubDate:    samplePubDate,
			Raw:        []byte{0x1, 0x2},
		},
	}
}

func TestFormatRegistry(t *testing.T) {
	names := Formats()
	for _, want := range []string{FormatJSON, FormatJSONL, FormatXML, FormatYAML, FormatNative, FormatPB} {
		assert.Contains(t, names, want)
	}

	_, err := GetFormat("bson")
	assert.ErrorIs(t, err, merr.ErrFormatNotFound)

	assert.ErrorIs(t, RegisterFormat(jsonFormat{}), merr.ErrFormatDuplicate)
}

func TestParentRecordsComeFirst(t *testing.T) {
	recs, err := ToRecords([]model.Model{&sdAuthor{
		sdPerson: sdPerson{ID: 7, FirstName: "Ada"},
		Alias:    "ada",
	}})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "blog.person", recs[0].Model)
	assert.EqualValues(t, int64(7), recs[0].PK)
	assert.Equal(t, "Ada", recs[0].Fields["first_name"])

	assert.Equal(t, "blog.author", recs[1].Model)
	assert.EqualValues(t, int64(7), recs[1].PK)
	assert.Equal(t, "ada", recs[1].Fields["alias"])
	assert.NotContains(t, recs[1].Fields, "first_name")
}

func TestToRecordsFieldsSubset(t *testing.T) {
	recs, err := ToRecords([]model.Model{&sdArticle{
		ID:         100,
		Title:      "hello",
		Author:     7,
		Categories: []int64{1},
		PubDate:    samplePubDate,
	}}, WithFields("title"))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, []string{"title"}, recs[0].FieldOrder())
	assert.NotContains(t, recs[0].Fields, "author")
	assert.Empty(t, recs[0].M2M)
	// 主键不受白名单影响。
	assert.EqualValues(t, int64(100), recs[0].PK)
}

func TestToRecordsNaturalKeys(t *testing.T) {
	recs, err := ToRecords([]model.Model{&sdCategory{ID: 1, Name: "go"}}, WithNaturalPrimaryKeys(true))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Nil(t, recs[0].PK)
	assert.Equal(t, []any{"go"}, recs[0].Natural)
}

func TestFromRecordsUnknownField(t *testing.T) {
	rec := &Record{
		Model:  "blog.category",
		PK:     1,
		Fields: map[string]any{"name": "go", "ghost": true},
	}

	_, err := FromRecords([]*Record{rec})
	assert.ErrorIs(t, err, merr.ErrFieldNotFound)

	objs, err := FromRecords([]*Record{rec}, WithIgnoreNonExistent(true))
	require.NoError(t, err)
	assert.Equal(t, "go", objs[0].Object.(*sdCategory).Name)
}

func TestFromRecordsUnknownModel(t *testing.T) {
	_, err := FromRecords([]*Record{{Model: "blog.ghost"}})
	assert.ErrorIs(t, err, merr.ErrModelNotFound)
}

func TestCheckStreamVersion(t *testing.T) {
	assert.NoError(t, CheckStreamVersion("1.0.0"))
	assert.NoError(t, CheckStreamVersion("1.2.3"))
	assert.ErrorIs(t, CheckStreamVersion("2.0.0"), merr.ErrVersionIncompatible)
	assert.ErrorIs(t, CheckStreamVersion("0.9.0"), merr.ErrVersionIncompatible)
	assert.ErrorIs(t, CheckStreamVersion("garbage"), merr.ErrVersionIncompatible)
}
