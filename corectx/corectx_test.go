package corectx

import (
	"testing"
	"time"

	"github.com/seandai318/coresig/timer"
)

func TestInitWiresPoolTickerLogger(t *testing.T) {
	ctx, err := Init(Config{TickerInterval: 5})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer ctx.Shutdown()

	if ctx.Pool == nil || ctx.Ticker == nil || ctx.Log == nil {
		t.Fatalf("Init left a collaborator nil: %+v", ctx)
	}
	if len(ctx.Collectors()) == 0 {
		t.Fatalf("Collectors returned none")
	}
}

func TestRegisterWheelDrainsTicks(t *testing.T) {
	ctx, err := Init(Config{TickerInterval: 5})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer ctx.Shutdown()

	w := timer.NewWheel(nil, nil)
	var fired bool
	w.StartTimer(0, func(uint64, any) { fired = true }, nil)

	stop := ctx.RegisterWheel(w, 1, nil)
	defer stop()

	time.Sleep(50 * time.Millisecond)
	if !fired {
		t.Fatalf("timer never fired through registered wheel")
	}
}
