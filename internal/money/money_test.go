package money

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Amount
		wantErr bool
	}{
		{name: "whole", raw: "150", want: 15000},
		{name: "two decimals", raw: "12.34", want: 1234},
		{name: "one decimal", raw: "0.5", want: 50},
		{name: "negative", raw: "-3.10", want: -310},
		{name: "too precise", raw: "1.005", wantErr: true},
		{name: "garbage", raw: "abc", wantErr: true},
		{name: "largest", raw: "92233720368547758.07", want: Amount(math.MaxInt64)},
		{name: "above int64", raw: "92233720368547758.08", wantErr: true},
		{name: "wraps to one", raw: "184467440737095517.16", wantErr: true},
		{name: "below int64", raw: "-92233720368547758.09", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAmount))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountJSON(t *testing.T) {
	payload, err := json.Marshal(struct {
		Due Amount `json:"due"`
	}{Due: FromMajor(100)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"100.00"}`, string(payload))

	var decoded struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"19.90","b":200}`), &decoded))
	assert.Equal(t, Amount(1990), decoded.A)
	assert.Equal(t, FromMajor(200), decoded.B)

	err = json.Unmarshal([]byte(`{"a":"1.999"}`), &decoded)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"a":92233720368547758.08}`), &decoded)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAmountScan(t *testing.T) {
	var a Amount
	require.NoError(t, a.Scan(int64(3000)))
	assert.Equal(t, FromMajor(30), a)

	require.NoError(t, a.Scan([]byte("125")))
	assert.Equal(t, Amount(125), a)

	assert.Error(t, a.Scan(3.5))
}

func TestTimes(t *testing.T) {
	assert.Equal(t, FromMajor(300), FromMajor(100).Times(3))
	assert.Equal(t, "300.00", FromMajor(100).Times(3).String())
}
