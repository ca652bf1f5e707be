package process

import "fmt"

// Fork implements the process-model half of the fork syscall: clone the
// parent's user page table (copy-on-fork, not copy-on-write — spec.md §4.3
// Clone semantics), duplicate the trap frame, and wire up a fresh
// ChildStatus. The caller (internal/sched, which owns process ids) is
// responsible for assigning the child's pid via Scheduler.Add and then
// setting x0 = 0 in the child's trap frame and x0 = child pid in the
// parent's — this method only does the process-record half of the fork.
//
// fork is best-effort (spec.md §7): if the page-table clone fails, an error
// is returned and the parent is left completely untouched — no partial
// child, no ChildStatus installed.
func (p *Process) Fork() (*Process, *ChildStatus, error) {
	childTable, err := p.UserTable.Clone()
	if err != nil {
		return nil, nil, fmt.Errorf("process: Fork: clone page table: %w", err)
	}

	childFrame := *p.TrapFrame // value copy: same pc/sp/regs as parent at the instant of fork
	status := &ChildStatus{}

	child := &Process{
		TrapFrame:   &childFrame,
		KernelStack: make([]byte, len(p.KernelStack)),
		UserTable:   childTable,
		State:       State{Kind: Ready},
		Parent:      status,
	}
	for fd, pf := range p.Files {
		if pf != nil {
			shared := *pf
			child.Files[fd] = &shared
		}
	}

	return child, status, nil
}

// AdoptChild records a successfully forked and scheduled child: installs
// status into p's Children list and stamps the child's id into status. Must
// only be called after the scheduler has assigned the child a pid —
// spec.md §7: "the parent-child links are only installed after a
// successful enqueue."
func (p *Process) AdoptChild(status *ChildStatus, childPID uint64) {
	status.PID = childPID
	p.Children = append(p.Children, status)
}
