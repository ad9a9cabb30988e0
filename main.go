package main

import (
	"fmt"
	"os"
	"runtime/pprof"
	"time"
	"unsafe"

	"github.com/urfave/cli"

	"slabAllocator/logger"
	"slabAllocator/mem"
	"slabAllocator/rpc"
	"slabAllocator/slab"
)

const (
	defaultBenchPeriod = 10000
	defaultBenchRounds = 10000000

	minBenchBlock = 8
	maxBenchBlock = 8192
)

func main() {
	app := cli.NewApp()
	app.Name = "slaballocator"
	app.Usage = "slab cache benchmarks and allocation service"
	app.Commands = []cli.Command{
		{
			Name:  "bench",
			Usage: "compare heap and slab allocation across block sizes",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "period", Value: defaultBenchPeriod, Usage: "outstanding allocations per window"},
				cli.IntFlag{Name: "rounds", Value: defaultBenchRounds, Usage: "operations counted per pass"},
				cli.StringFlag{Name: "cpuprofile", Usage: "write a CPU profile to `FILE`"},
			},
			Action: runBench,
		},
		{
			Name:  "serve",
			Usage: "serve pool allocations over TCP",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "address", Value: "localhost:1234", Usage: "listen address"},
				cli.StringFlag{Name: "metrics-address", Usage: "optional Prometheus listen address"},
			},
			Action: runServe,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal("%v", err)
	}
}

func runBench(ctx *cli.Context) error {
	if profile := ctx.String("cpuprofile"); profile != "" {
		f, err := os.Create(profile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	period := ctx.Int("period")
	rounds := ctx.Int("rounds")
	for size := minBenchBlock; size <= maxBenchBlock; size <<= 1 {
		heapBench(size, period, rounds)
		slabBench(size, period, rounds)
	}
	return nil
}

// heapBench exercises the runtime heap: allocate a window of blocks, touch
// each, drop the whole window, repeat.
func heapBench(blockSize, period, rounds int) {
	start := time.Now()
	tmp := make([][]byte, period)
	i := 0
	for i < rounds {
		buf := make([]byte, blockSize)
		buf[0] = 'x'
		tmp[i%period] = buf
		i++
		if i%period == 0 {
			for j := range tmp {
				tmp[j] = nil
			}
			i += period
		}
	}
	printReport("heap", blockSize, rounds, time.Since(start))
}

// slabBench runs the same windowed workload against a slab cache.
func slabBench(blockSize, period, rounds int) {
	start := time.Now()
	provider := mem.NewProvider()
	cache := slab.NewCache(uintptr(blockSize), provider)

	tmp := make([]unsafe.Pointer, period)
	i := 0
	for i < rounds {
		p := cache.Alloc()
		*(*byte)(p) = 'x'
		tmp[i%period] = p
		i++
		if i%period == 0 {
			for _, q := range tmp {
				cache.Free(q)
			}
			i += period
		}
	}
	cache.Release()
	provider.Close()
	printReport("slab", blockSize, rounds, time.Since(start))
}

func printReport(name string, blockSize, rounds int, elapsed time.Duration) {
	fmt.Printf("allocator: %6s, blk_size: %6d, iterations: %d, elapsed (s): %.6f, ns/iter: %.6f\n",
		name, blockSize, rounds, elapsed.Seconds(),
		float64(elapsed.Nanoseconds())/float64(rounds))
}

func runServe(ctx *cli.Context) error {
	server, err := rpc.NewServer()
	if err != nil {
		return err
	}
	defer server.Close()

	if metricsAddr := ctx.String("metrics-address"); metricsAddr != "" {
		go func() {
			if err := server.ServeMetrics(metricsAddr); err != nil {
				logger.Error("metrics listener: %v", err)
			}
		}()
	}

	return server.Start(ctx.String("address"))
}
