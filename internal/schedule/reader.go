package schedule

import (
	"bufio"
	"fmt"
	"os"
	"pivotrepair/pkg/protocol"
	"strconv"
)

func NewTaskReader(path string) (new *TaskReader, err error) {
	file, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("failed to open task file: %w", err)
		return
	}

	new = &TaskReader{
		file:    file,
		scanner: bufio.NewScanner(file),
	}
	new.scanner.Split(bufio.ScanWords)

	groupNum, err := new.nextInt("group count")
	if err != nil {
		_ = file.Close()
		new = nil
		return
	}
	if groupNum < 0 {
		_ = file.Close()
		new = nil
		err = fmt.Errorf("negative group count %d", groupNum)
		return
	}
	new.groupNum = int(groupNum)
	return
}

func (reader *TaskReader) nextInt(field string) (value int64, err error) {
	if !reader.scanner.Scan() {
		err = reader.scanner.Err()
		if err == nil {
			err = fmt.Errorf("task file ended before %s", field)
		}
		return
	}
	value, err = strconv.ParseInt(reader.scanner.Text(), 10, 64)
	if err != nil {
		err = fmt.Errorf("invalid %s %q: %w", field, reader.scanner.Text(), err)
	}
	return
}

// Reads the next group from the file. A malformed group ends the plan, see Err.
func (reader *TaskReader) NextGroupNumber() (groups int, ok bool) {
	if reader.err != nil || reader.current >= reader.groupNum {
		return
	}
	reader.current++

	tasks, capacity, err := reader.readGroup()
	if err != nil {
		reader.err = fmt.Errorf("group %d: %w", reader.current, err)
		return
	}
	reader.tasks = tasks
	reader.capacity = capacity

	groups, ok = 1, true
	return
}

func (reader *TaskReader) readGroup() (tasks []taskInfo, capacity uint64, err error) {
	taskNum, err := reader.nextInt("task count")
	if err != nil {
		return
	}
	if taskNum < 0 {
		err = fmt.Errorf("negative task count %d", taskNum)
		return
	}

	tasks = make([]taskInfo, taskNum)
	for i := range tasks {
		task := &tasks[i]
		fields := []struct {
			name  string
			value *int64
		}{
			{"task id", &task.id},
			{"offset", &task.offset},
			{"size", &task.size},
			{"piece size", &task.pieceSize},
			{"bandwidth", &task.bandwidth},
		}
		for _, field := range fields {
			*field.value, err = reader.nextInt(field.name)
			if err != nil {
				err = fmt.Errorf("task %d: %w", i, err)
				return
			}
		}

		var nodeNum int64
		nodeNum, err = reader.nextInt("node count")
		if err != nil {
			err = fmt.Errorf("task %d: %w", i, err)
			return
		}
		if nodeNum < 0 {
			err = fmt.Errorf("task %d: negative node count %d", i, nodeNum)
			return
		}
		task.nodes = make([]nodeTask, nodeNum)
		for j := range task.nodes {
			task.nodes[j].nodeID, err = reader.nextInt("node id")
			if err == nil {
				task.nodes[j].tarID, err = reader.nextInt("target id")
			}
			if err != nil {
				err = fmt.Errorf("task %d node %d: %w", i, j, err)
				return
			}
		}
		if task.bandwidth > 0 {
			capacity += uint64(task.bandwidth)
		}
	}
	return
}

// Only group 0 exists in a loaded set
func (reader *TaskReader) TaskNumber(group int) (tasks int) {
	if group == 0 {
		tasks = len(reader.tasks)
	}
	return
}

func (reader *TaskReader) FillTask(group, task int, nodeID int64, directive *protocol.Directive) (sources []int64) {
	directive.TarID = 0
	directive.SrcNum = 0
	if group != 0 || task < 0 || task >= len(reader.tasks) {
		directive.Size = 0
		return
	}

	info := reader.tasks[task]
	for _, node := range info.nodes {
		if node.nodeID == nodeID {
			directive.TarID = node.tarID
		} else if node.tarID == nodeID {
			sources = append(sources, node.nodeID)
		}
	}
	directive.SrcNum = int64(len(sources))

	if directive.TarID == 0 {
		directive.Size = 0
		return
	}
	directive.Offset = info.offset
	directive.Size = info.size
	directive.PieceSize = info.pieceSize
	directive.Bandwidth = info.bandwidth
	return
}

func (reader *TaskReader) Capacity() (bytesPerSec uint64) {
	bytesPerSec = reader.capacity
	return
}

func (reader *TaskReader) ReplacedNode() (nodeID int64) {
	return
}

// First error that ended the plan early
func (reader *TaskReader) Err() (err error) {
	err = reader.err
	return
}

func (reader *TaskReader) Close() (err error) {
	if reader.file == nil {
		return
	}
	err = reader.file.Close()
	reader.file = nil
	return
}
