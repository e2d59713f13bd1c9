package ingest

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleHeader mirrors the published file, including the padded second column.
const sampleHeader = `CompanyName, CompanyNumber,RegAddress.CareOf,RegAddress.POBox,RegAddress.AddressLine1,RegAddress.AddressLine2,RegAddress.PostTown,RegAddress.County,RegAddress.Country,RegAddress.PostCode,CompanyCategory,CompanyStatus,CountryOfOrigin,IncorporationDate,SICCode.SicText_1`

func TestParserDecodesRow(t *testing.T) {
	input := sampleHeader + "\n" +
		`"ACME WIDGETS LIMITED","00000001",,,"1 HIGH STREET","SUITE 2","LONDON","GREATER LONDON","UNITED KINGDOM","EC1A 1AA","Private Limited Company","Active","United Kingdom","01/02/1999","62012 - Business and domestic software development"` + "\n"

	p, err := NewParser(strings.NewReader(input))
	require.NoError(t, err)

	c, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, "00000001", c.CompanyNumber)
	assert.Equal(t, "ACME WIDGETS LIMITED", c.Name)
	assert.Equal(t, "Private Limited Company", c.Category)
	assert.Equal(t, "Active", c.Status)
	assert.Equal(t, "United Kingdom", c.CountryOfOrigin)
	assert.Equal(t, "01/02/1999", c.IncorporationDate)
	assert.Equal(t, "62012 - Business and domestic software development", c.SICCodes)
	assert.Equal(t, "1 HIGH STREET", c.Address.Line1)
	assert.Equal(t, "SUITE 2", c.Address.Line2)
	assert.Equal(t, "LONDON", c.Address.Town)
	assert.Equal(t, "GREATER LONDON", c.Address.County)
	assert.Equal(t, "UNITED KINGDOM", c.Address.Country)
	assert.Equal(t, "EC1A 1AA", c.Address.Postcode)

	_, err = p.Next()
	assert.Equal(t, io.EOF, err)
}

func TestParserTrimsFields(t *testing.T) {
	input := "CompanyName,CompanyNumber\n" +
		"  Acme Ltd  ,  00000001  \n"

	p, err := NewParser(strings.NewReader(input))
	require.NoError(t, err)

	c, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Acme Ltd", c.Name)
	assert.Equal(t, "00000001", c.CompanyNumber)
}

func TestParserSkipsRowMissingCompanyNumber(t *testing.T) {
	input := "CompanyName,CompanyNumber\n" +
		"No Number Ltd,\n" +
		"Has Number Ltd,00000002\n"

	p, err := NewParser(strings.NewReader(input))
	require.NoError(t, err)

	c, err := p.Next()
	require.NoError(t, err)
	assert.Nil(t, c, "row without a company number should be skipped")

	c, err = p.Next()
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "00000002", c.CompanyNumber)
}

func TestParserToleratesShortRows(t *testing.T) {
	input := "CompanyName,CompanyNumber,CompanyStatus\n" +
		"Short Row Ltd,00000003\n"

	p, err := NewParser(strings.NewReader(input))
	require.NoError(t, err)

	c, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "00000003", c.CompanyNumber)
	assert.Empty(t, c.Status)
}

func TestParserSICCodesFallback(t *testing.T) {
	input := "CompanyName,CompanyNumber,SICCodes\n" +
		"Old Snapshot Ltd,00000004,7499\n"

	p, err := NewParser(strings.NewReader(input))
	require.NoError(t, err)

	c, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "7499", c.SICCodes)
}

func TestParserHeaderWithoutCompanyNumber(t *testing.T) {
	_, err := NewParser(strings.NewReader("CompanyName,CompanyStatus\nAcme,Active\n"))
	var structural *StructuralError
	require.ErrorAs(t, err, &structural)
}

func TestParserEmptyInput(t *testing.T) {
	_, err := NewParser(strings.NewReader(""))
	var structural *StructuralError
	require.ErrorAs(t, err, &structural)
}

// brokenReader fails partway through, like a truncated decompression stream.
type brokenReader struct {
	data []byte
	err  error
	pos  int
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, r.err
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func TestParserStructuralFailureCarriesOffset(t *testing.T) {
	streamErr := errors.New("flate: corrupt input")
	r := &brokenReader{
		data: []byte("CompanyName,CompanyNumber\nAcme Ltd,00000001\n"),
		err:  streamErr,
	}

	p, err := NewParser(r)
	require.NoError(t, err)

	c, err := p.Next()
	require.NoError(t, err)
	require.NotNil(t, c)

	_, err = p.Next()
	var structural *StructuralError
	require.ErrorAs(t, err, &structural)
	assert.ErrorIs(t, err, streamErr)
	assert.Positive(t, structural.Offset)
}

func TestParserInputOffsetAdvances(t *testing.T) {
	input := "CompanyName,CompanyNumber\nA Ltd,00000001\nB Ltd,00000002\n"

	p, err := NewParser(strings.NewReader(input))
	require.NoError(t, err)

	first := p.InputOffset()
	_, err = p.Next()
	require.NoError(t, err)
	second := p.InputOffset()
	assert.Greater(t, second, first)
}
