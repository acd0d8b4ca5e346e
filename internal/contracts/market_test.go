package contracts

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSession = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func bar(minute int, o, h, l, c float64) Bar {
	return Bar{
		InstrumentID: "600519",
		SessionDate:  testSession,
		Timestamp:    testSession.Add(9*time.Hour + 30*time.Minute + time.Duration(minute)*time.Minute),
		Open:         o,
		High:         h,
		Low:          l,
		Close:        c,
		PreClose:     100,
		Volume:       1000,
	}
}

func TestBar_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(b *Bar)
		wantErr bool
	}{
		{name: "valid", mutate: func(b *Bar) {}},
		{name: "flat bar", mutate: func(b *Bar) { b.Open, b.High, b.Low, b.Close = 10, 10, 10, 10 }},
		{name: "high below close", mutate: func(b *Bar) { b.High = 100.5 }, wantErr: true},
		{name: "low above open", mutate: func(b *Bar) { b.Low = 100.2 }, wantErr: true},
		{name: "negative low", mutate: func(b *Bar) { b.Low = -1; b.Open = 0; b.Close = 0 }, wantErr: true},
		{name: "missing pre_close", mutate: func(b *Bar) { b.PreClose = 0 }, wantErr: true},
		{name: "NaN close", mutate: func(b *Bar) { b.Close = math.NaN() }, wantErr: true},
		{name: "empty id", mutate: func(b *Bar) { b.InstrumentID = "" }, wantErr: true},
		{name: "timestamp on other day", mutate: func(b *Bar) { b.Timestamp = b.Timestamp.AddDate(0, 0, 1) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bar(0, 100, 101, 99, 100.8)
			tt.mutate(&b)
			err := b.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDataIntegrity))

			var die *DataIntegrityError
			require.True(t, errors.As(err, &die))
			assert.Equal(t, b.InstrumentID, die.InstrumentID)
		})
	}
}

func TestValidateSession(t *testing.T) {
	t.Run("strictly increasing", func(t *testing.T) {
		bars := []Bar{bar(0, 100, 101, 99, 100), bar(1, 100, 102, 100, 101), bar(2, 101, 101, 100, 100)}
		assert.NoError(t, ValidateSession(bars))
	})

	t.Run("duplicate timestamp", func(t *testing.T) {
		bars := []Bar{bar(0, 100, 101, 99, 100), bar(0, 100, 101, 99, 100)}
		err := ValidateSession(bars)
		assert.ErrorIs(t, err, ErrDataIntegrity)
		assert.Contains(t, err.Error(), "non-increasing")
	})

	t.Run("mixed instruments", func(t *testing.T) {
		other := bar(1, 100, 101, 99, 100)
		other.InstrumentID = "000001"
		err := ValidateSession([]Bar{bar(0, 100, 101, 99, 100), other})
		assert.ErrorIs(t, err, ErrDataIntegrity)
	})

	t.Run("empty session", func(t *testing.T) {
		assert.NoError(t, ValidateSession(nil))
	})
}

func TestLookaheadViolation(t *testing.T) {
	err := error(&LookaheadViolation{
		Component: "factor_model",
		AsOf:      testSession,
		Seen:      testSession.AddDate(0, 0, 1),
	})
	assert.ErrorIs(t, err, ErrLookahead)
	assert.False(t, errors.Is(err, ErrDataIntegrity))
	assert.Contains(t, err.Error(), "2024-03-15")
}
