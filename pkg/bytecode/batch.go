package bytecode

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// AssembleAll assembles independent class files on up to workers goroutines.
// Each class gets its own pool. The result has one slot per input, in input
// order; a class that failed leaves a nil slot and contributes one error to
// the returned *multierror.Error.
func (a *Assembler) AssembleAll(classes []*ClassFile, workers int) ([][]byte, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(classes) {
		workers = len(classes)
	}

	out := make([][]byte, len(classes))
	errs := make([]error, len(classes))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				out[j], errs[j] = a.Assemble(classes[j])
			}
		}()
	}
	for j := range classes {
		jobs <- j
	}
	close(jobs)
	wg.Wait()

	var result *multierror.Error
	for j, err := range errs {
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("class %d: %w", j, err))
			a.log.Warn().Err(err).Int("index", j).Msg("class assembly failed")
		}
	}
	return out, result.ErrorOrNil()
}
