package resolver

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/banshee-data/openml-pimp/internal/paramgrid"
)

// Table files run ids under template name → task id → held-out value. Every
// level keeps first-insertion order. A leaf may hold several run ids when the
// same configuration was run more than once.
type Table struct {
	names  []string
	byName map[string]*templateRuns
}

type templateRuns struct {
	tasks  []int
	byTask map[int]*taskRuns
}

type taskRuns struct {
	values  []paramgrid.Value
	byValue map[paramgrid.Value][]int
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{byName: make(map[string]*templateRuns)}
}

// Add appends runID under (template, taskID, value), creating intermediate
// levels on first use.
func (t *Table) Add(template string, taskID int, value paramgrid.Value, runID int) {
	tr, ok := t.byName[template]
	if !ok {
		tr = &templateRuns{byTask: make(map[int]*taskRuns)}
		t.byName[template] = tr
		t.names = append(t.names, template)
	}
	kr, ok := tr.byTask[taskID]
	if !ok {
		kr = &taskRuns{byValue: make(map[paramgrid.Value][]int)}
		tr.byTask[taskID] = kr
		tr.tasks = append(tr.tasks, taskID)
	}
	if _, ok := kr.byValue[value]; !ok {
		kr.values = append(kr.values, value)
	}
	kr.byValue[value] = append(kr.byValue[value], runID)
}

// Templates lists template names that received at least one run.
func (t *Table) Templates() []string {
	return append([]string(nil), t.names...)
}

// Tasks lists the tasks filed under template.
func (t *Table) Tasks(template string) []int {
	tr, ok := t.byName[template]
	if !ok {
		return nil
	}
	return append([]int(nil), tr.tasks...)
}

// ExcludedValues lists the held-out values seen for (template, taskID).
func (t *Table) ExcludedValues(template string, taskID int) []paramgrid.Value {
	kr := t.task(template, taskID)
	if kr == nil {
		return nil
	}
	return append([]paramgrid.Value(nil), kr.values...)
}

// Runs returns the run ids filed under (template, taskID, value).
func (t *Table) Runs(template string, taskID int, value paramgrid.Value) []int {
	kr := t.task(template, taskID)
	if kr == nil {
		return nil
	}
	return append([]int(nil), kr.byValue[value]...)
}

// Len counts every filed run id.
func (t *Table) Len() int {
	n := 0
	for _, tr := range t.byName {
		for _, kr := range tr.byTask {
			for _, runs := range kr.byValue {
				n += len(runs)
			}
		}
	}
	return n
}

func (t *Table) task(template string, taskID int) *taskRuns {
	tr, ok := t.byName[template]
	if !ok {
		return nil
	}
	return tr.byTask[taskID]
}

// MarshalJSON renders the table as nested objects in insertion order, with
// task ids and held-out values as string keys.
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range t.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, name)
		tr := t.byName[name]
		buf.WriteByte('{')
		for j, taskID := range tr.tasks {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeKey(&buf, strconv.Itoa(taskID))
			kr := tr.byTask[taskID]
			buf.WriteByte('{')
			for k, v := range kr.values {
				if k > 0 {
					buf.WriteByte(',')
				}
				writeKey(&buf, v.String())
				runs, err := json.Marshal(kr.byValue[v])
				if err != nil {
					return nil, err
				}
				buf.Write(runs)
			}
			buf.WriteByte('}')
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) {
	enc, _ := json.Marshal(key)
	buf.Write(enc)
	buf.WriteByte(':')
}
