package batch

import "sync"

// pool runs batches of tasks on a fixed set of goroutines. run blocks until
// every task of the batch has finished.
type pool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

func newPool(workers int) *pool {
	p := &pool{tasks: make(chan func())}
	for range workers {
		go p.work()
	}
	return p
}

func (p *pool) work() {
	for task := range p.tasks {
		task()
		p.wg.Done()
	}
}

func (p *pool) run(tasks []func()) {
	p.wg.Add(len(tasks))
	for _, task := range tasks {
		p.tasks <- task
	}
	p.wg.Wait()
}

func (p *pool) close() {
	close(p.tasks)
}

// ranges splits [0, n) into at most parts contiguous ranges; the last range
// takes the remainder.
func ranges(n, parts int) [][2]int {
	if n == 0 {
		return nil
	}
	parts = max(1, min(parts, n))
	step := n / parts
	out := make([][2]int, parts)
	for i := range parts {
		out[i] = [2]int{i * step, (i + 1) * step}
	}
	out[parts-1][1] = n
	return out
}
