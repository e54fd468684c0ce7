package keyedpager_test

import (
	"context"
	"fmt"

	kp "github.com/zhangzqs/keyedpager-go"
)

// Example_basicPaging pages forward through an in-memory dataset.
func Example_basicPaging() {
	entries := map[int]string{}
	for i := 1; i <= 6; i++ {
		entries[i] = fmt.Sprintf("item-%d", i)
	}
	source := kp.NewMemorySource(entries, 2)
	pager := kp.NewPager[int, int, string](source, nil, nil, nil)
	defer pager.Dispose()

	ctx := context.Background()
	if err := pager.EnsureInitialized(ctx); err != nil {
		fmt.Println("init failed:", err)
		return
	}
	fmt.Println(pager.Window().Items())

	if err := pager.Next(ctx); err != nil {
		fmt.Println("next failed:", err)
		return
	}
	fmt.Println(pager.Window().Items())
	fmt.Println("has more:", pager.HasNext())
	// Output:
	// [item-1 item-2]
	// [item-1 item-2 item-3 item-4]
	// has more: true
}

// Example_anchoredPaging starts the window in the middle of the dataset and
// expands it backwards.
func Example_anchoredPaging() {
	entries := map[int]string{}
	for i := 1; i <= 6; i++ {
		entries[i] = fmt.Sprintf("item-%d", i)
	}
	anchor := 4
	pager := kp.NewPager[int, int, string](kp.NewMemorySource(entries, 2), nil, &anchor, nil)
	defer pager.Dispose()

	ctx := context.Background()
	if err := pager.EnsureInitialized(ctx); err != nil {
		fmt.Println("init failed:", err)
		return
	}
	fmt.Println(pager.Window().Items())

	if err := pager.Previous(ctx); err != nil {
		fmt.Println("previous failed:", err)
		return
	}
	fmt.Println(pager.Window().Items())
	fmt.Println("has more backwards:", pager.HasPrevious())
	// Output:
	// [item-4 item-5]
	// [item-2 item-3 item-4 item-5]
	// has more backwards: true
}

// Example_transforming derives items incrementally from successive source
// values: each update appends to what is already stored under the key.
func Example_transforming() {
	source := kp.NewMemorySource(map[int]string{1: "a"}, 10)
	transform := func(ctx context.Context, previous *string, data string) (string, error) {
		if previous == nil {
			return data, nil
		}
		return *previous + ">" + data, nil
	}
	pager := kp.NewTransformingPager[int, int, string, string](source, transform, nil, nil)
	defer pager.Dispose()

	if err := pager.EnsureInitialized(context.Background()); err != nil {
		fmt.Println("init failed:", err)
		return
	}
	fmt.Println(pager.Window().Items())

	source.Put(1, "b")
	source.Put(1, "c")
	fmt.Println(pager.Window().Items())
	// Output:
	// [a]
	// [a>b>c]
}
