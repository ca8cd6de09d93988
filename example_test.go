package ringstore_test

import (
	"fmt"

	"github.com/ag-botkit/ringstore"
)

func ExampleRing() {
	r, err := ringstore.New(10)
	if err != nil {
		panic(err)
	}
	defer r.Close()

	base := int64(1735689600000) // 2025-01-01 00:00:00 UTC
	for i := 0; i < 5; i++ {
		r.Append(base+int64(i)*1000, 10.0+float64(i)*2.5)
	}

	fmt.Printf("size=%d cap=%d\n", r.Len(), r.Cap())

	dst := make([]ringstore.Sample, 3)
	n := r.Last(dst)
	fmt.Println("last 3, newest first:")
	for _, s := range dst[:n] {
		fmt.Printf("  +%dms %.2f\n", s.TimestampMs-base, s.Value)
	}

	n = r.Range(base+1000, base+3000, dst)
	fmt.Println("range, oldest first:")
	for _, s := range dst[:n] {
		fmt.Printf("  +%dms %.2f\n", s.TimestampMs-base, s.Value)
	}

	// Output:
	// size=5 cap=10
	// last 3, newest first:
	//   +4000ms 20.00
	//   +3000ms 17.50
	//   +2000ms 15.00
	// range, oldest first:
	//   +1000ms 12.50
	//   +2000ms 15.00
	//   +3000ms 17.50
}

func ExampleRing_eviction() {
	// A full ring overwrites its oldest sample on every append.
	r, _ := ringstore.New(3)
	defer r.Close()

	for i := 1; i <= 5; i++ {
		r.Append(int64(i*1000), float64(i))
	}

	dst := make([]ringstore.Sample, 3)
	n := r.Last(dst)
	for _, s := range dst[:n] {
		fmt.Printf("%d %.1f\n", s.TimestampMs, s.Value)
	}

	// Output:
	// 5000 5.0
	// 4000 4.0
	// 3000 3.0
}
