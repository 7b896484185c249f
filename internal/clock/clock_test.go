package clock

import (
	"testing"
	"time"
)

func TestFake_AdvanceFiresTicker(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)
	tk := f.NewTicker(3 * time.Second)
	defer tk.Stop()

	f.Advance(2 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("ticker fired before its deadline")
	default:
	}

	f.Advance(1 * time.Second)
	select {
	case got := <-tk.C():
		if want := start.Add(3 * time.Second); !got.Equal(want) {
			t.Errorf("tick time = %v, want %v", got, want)
		}
	default:
		t.Fatal("ticker did not fire at its deadline")
	}
}

func TestFake_DropsUnreceivedTicks(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	tk := f.NewTicker(time.Second)

	f.Advance(5 * time.Second)

	<-tk.C()
	select {
	case <-tk.C():
		t.Fatal("expected extra ticks to be dropped")
	default:
	}
}

func TestFake_StoppedTickerDoesNotFire(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	tk := f.NewTicker(time.Second)
	tk.Stop()

	f.Advance(2 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFake_TickerCreatedSignals(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	_ = f.NewTicker(time.Second)

	select {
	case <-f.TickerCreated():
	default:
		t.Fatal("expected TickerCreated signal")
	}
}

func TestFake_SetAndNow(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.Set(want)

	if !f.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", f.Now(), want)
	}
}

func TestReal_Now(t *testing.T) {
	before := time.Now()
	got := Real().Now()
	if got.Before(before) {
		t.Errorf("Real().Now() = %v, before %v", got, before)
	}
}
