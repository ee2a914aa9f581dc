// Package monitoring serves a read-only HTTP inspector for a running
// simulation: processes, their page tables, device usage, and the resources
// of the simulator itself.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/sarchlab/pagesim/kernel"
	"github.com/sarchlab/pagesim/mem/memphy"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/mmu"
	"github.com/sarchlab/pagesim/monitoring/web"
	"github.com/sarchlab/pagesim/workload"
	"github.com/shirou/gopsutil/process"
	"github.com/sirupsen/logrus"
	"github.com/syifan/goseth"
)

// MaxDumpPages bounds the number of pages a page-table request can cover.
const MaxDumpPages = 1 << 16

// Monitor turns a simulation into a server that can be inspected while it
// runs.
type Monitor struct {
	kernel     *kernel.Kernel
	portNumber int
	log        logrus.FieldLogger

	runsLock sync.Mutex
	runs     []*workload.Progress
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{log: logrus.StandardLogger()}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		m.log.Warnf("Port number %d is assigned to the monitoring server, "+
			"which is not allowed. Using a random port instead.", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(log logrus.FieldLogger) *Monitor {
	m.log = log
	return m
}

// RegisterKernel registers the kernel whose processes are shown.
func (m *Monitor) RegisterKernel(k *kernel.Kernel) {
	m.kernel = k
}

// WatchRun shows the progress of a script run until it is forgotten.
func (m *Monitor) WatchRun(p *workload.Progress) {
	m.runsLock.Lock()
	defer m.runsLock.Unlock()

	m.runs = append(m.runs, p)
}

// ForgetRun stops showing a run.
func (m *Monitor) ForgetRun(p *workload.Progress) {
	m.runsLock.Lock()
	defer m.runsLock.Unlock()

	m.runs = slices.DeleteFunc(m.runs, func(r *workload.Progress) bool {
		return r == p
	})
}

// Handler returns the router of the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/processes", m.listProcesses)
	r.HandleFunc("/api/process/{pid}", m.processDetails)
	r.HandleFunc("/api/process/{pid}/pgtbl", m.pageTable)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/memory", m.listMemory)
	r.HandleFunc("/api/progress", m.listRuns)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(http.FileServer(web.Assets()))

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	m.log.Infof("Monitoring simulation with %s", url)

	go func() {
		err := http.Serve(listener, m.Handler())
		if err != nil {
			m.log.WithError(err).Error("monitoring server stopped")
		}
	}()

	return url, nil
}

type regionRsp struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

type symbolRsp struct {
	ID    int    `json:"id"`
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

type vmaRsp struct {
	ID          int         `json:"id"`
	Start       uint64      `json:"start"`
	End         uint64      `json:"end"`
	Sbrk        uint64      `json:"sbrk"`
	FreeRegions []regionRsp `json:"free_regions"`
}

// processRsp is a snapshot of an mm. It is what the serializer walks, so the
// mm lock is never held while writing to the client.
type processRsp struct {
	PID      uint32      `json:"pid"`
	PGD      uint64      `json:"pgd"`
	VMAs     []vmaRsp    `json:"vmas"`
	Resident []uint64    `json:"resident"`
	Symbols  []symbolRsp `json:"symbols"`
}

func describeProcess(p *kernel.Process) processRsp {
	rsp := processRsp{
		PID:      p.PID,
		PGD:      p.MM.PGD(),
		VMAs:     []vmaRsp{},
		Resident: p.MM.FIFO(),
		Symbols:  []symbolRsp{},
	}

	for id, rg := range p.MM.Symbols() {
		if !rg.Empty() {
			rsp.Symbols = append(rsp.Symbols,
				symbolRsp{ID: id, Start: rg.Start, End: rg.End})
		}
	}

	for _, v := range p.MM.VMAs() {
		free := v.FreeRegions()

		p.MM.Lock()
		entry := vmaRsp{
			ID:          v.ID,
			Start:       v.Start,
			End:         v.End,
			Sbrk:        v.Sbrk,
			FreeRegions: make([]regionRsp, 0, len(free)),
		}
		p.MM.Unlock()

		for _, rg := range free {
			entry.FreeRegions = append(entry.FreeRegions,
				regionRsp{Start: rg.Start, End: rg.End})
		}

		rsp.VMAs = append(rsp.VMAs, entry)
	}

	return rsp
}

func (m *Monitor) listProcesses(w http.ResponseWriter, _ *http.Request) {
	procs := m.kernel.Processes()
	rsp := make([]processRsp, 0, len(procs))

	for _, p := range procs {
		rsp = append(rsp, describeProcess(p))
	}

	m.writeJSON(w, rsp)
}

func (m *Monitor) processDetails(w http.ResponseWriter, r *http.Request) {
	p := m.findProcessOr404(w, mux.Vars(r)["pid"])
	if p == nil {
		return
	}

	snapshot := describeProcess(p)

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&snapshot)
	serializer.SetMaxDepth(2)

	m.dieOnErr(serializer.Serialize(w))
}

type fieldReq struct {
	PID       string `json:"pid,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p := m.findProcessOr404(w, req.PID)
	if p == nil {
		return
	}

	snapshot := describeProcess(p)

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&snapshot)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.dieOnErr(serializer.Serialize(w))
}

type leafRsp struct {
	PGN        uint64 `json:"pgn"`
	PTE        uint32 `json:"pte"`
	Kind       string `json:"kind"`
	Frame      uint64 `json:"frame,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
	SwapType   uint64 `json:"swap_type,omitempty"`
	SwapOffset uint64 `json:"swap_offset,omitempty"`
}

func (m *Monitor) pageTable(w http.ResponseWriter, r *http.Request) {
	p := m.findProcessOr404(w, mux.Vars(r)["pid"])
	if p == nil {
		return
	}

	pageSize := m.kernel.MMU().PageSize()

	start, end, err := rangeParams(r, pageSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	leaves, err := m.kernel.MMU().Entries(p.MM, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rsp := make([]leafRsp, 0, len(leaves))
	for _, l := range leaves {
		rsp = append(rsp, leafResponse(l))
	}

	m.writeJSON(w, rsp)
}

func leafResponse(l mmu.LeafEntry) leafRsp {
	rsp := leafRsp{PGN: l.PGN, PTE: uint32(l.PTE)}

	switch mapping := l.Mapping.(type) {
	case vm.Resident:
		rsp.Kind = "resident"
		rsp.Frame = mapping.Frame
		rsp.Dirty = mapping.Dirty
	case vm.Swapped:
		rsp.Kind = "swapped"
		rsp.SwapType = mapping.Type
		rsp.SwapOffset = mapping.Offset
	case vm.Reserved:
		rsp.Kind = "reserved"
	default:
		rsp.Kind = "absent"
	}

	return rsp
}

func rangeParams(r *http.Request, pageSize uint64) (uint64, uint64, error) {
	parse := func(name string, def uint64) (uint64, error) {
		s := r.URL.Query().Get(name)
		if s == "" {
			return def, nil
		}

		return strconv.ParseUint(s, 0, 64)
	}

	start, err := parse("start", 0)
	if err != nil {
		return 0, 0, err
	}

	end, err := parse("end", start+256*pageSize)
	if err != nil {
		return 0, 0, err
	}

	if end < start || (end-start)/pageSize > MaxDumpPages {
		return 0, 0, fmt.Errorf("range %d-%d covers more than %d pages",
			start, end, MaxDumpPages)
	}

	return start, end, nil
}

type deviceRsp struct {
	Name       string `json:"name"`
	Frames     uint64 `json:"frames"`
	FreeFrames int    `json:"free_frames"`
}

func (m *Monitor) listMemory(w http.ResponseWriter, _ *http.Request) {
	devices := []*memphy.MemPhy{}
	if m.kernel.RAM() != nil {
		devices = append(devices, m.kernel.RAM())
	}

	devices = append(devices, m.kernel.Swaps()...)

	rsp := make([]deviceRsp, 0, len(devices))
	for _, d := range devices {
		rsp = append(rsp, deviceRsp{
			Name:       d.Name(),
			Frames:     d.NumFrames(),
			FreeFrames: d.FreeFrameCount(),
		})
	}

	m.writeJSON(w, rsp)
}

func (m *Monitor) findProcessOr404(
	w http.ResponseWriter,
	pidStr string,
) *kernel.Process {
	pid, err := strconv.ParseUint(pidStr, 10, 32)
	if err != nil {
		http.Error(w, "Invalid PID", http.StatusBadRequest)
		return nil
	}

	p, err := m.kernel.Process(uint32(pid))
	if err != nil {
		http.Error(w, "Process not found", http.StatusNotFound)
		return nil
	}

	return p
}

func (m *Monitor) listRuns(w http.ResponseWriter, _ *http.Request) {
	m.runsLock.Lock()
	defer m.runsLock.Unlock()

	reports := make([]workload.ProgressReport, 0, len(m.runs))
	for _, r := range m.runs {
		reports = append(reports, r.Report())
	}

	m.writeJSON(w, reports)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	m.dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	m.dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	m.dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	m.writeJSON(w, rsp)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	m.dieOnErr(err)

	m.writeJSON(w, prof)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	m.dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	m.dieOnErr(err)
}

func (m *Monitor) dieOnErr(err error) {
	if err != nil {
		m.log.Panic(err)
	}
}
