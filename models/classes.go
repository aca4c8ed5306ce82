package models

import "github.com/pkg/errors"

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet ties a model family to its full list of labels.
type OutputClassSet struct {
	// Class set identifier.
	Family ModelFamily
	// Classes ordered by index.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewOutputClassSet builds a set from labels ordered by index.
func NewOutputClassSet(family ModelFamily, labels []string) *OutputClassSet {
	set := &OutputClassSet{
		Family:    family,
		Classes:   make([]OutputClass, len(labels)),
		nameToIdx: make(map[string]int, len(labels)),
	}
	for i, name := range labels {
		set.Classes[i] = OutputClass{Index: i, Name: name}
		set.nameToIdx[name] = i
	}
	return set
}

// ClassManager holds all registered class sets.
type ClassManager struct {
	sets map[ModelFamily]*OutputClassSet
}

// NewClassManager initializes and registers the given sets.
func NewClassManager(sets ...*OutputClassSet) *ClassManager {
	mgr := &ClassManager{sets: make(map[ModelFamily]*OutputClassSet, len(sets))}
	for _, set := range sets {
		mgr.sets[set.Family] = set
	}
	return mgr
}

// GetName returns the class name for a given family and index.
func (m *ClassManager) GetName(family ModelFamily, idx int) (string, error) {
	set, ok := m.sets[family]
	if !ok {
		return "", errors.Errorf("family %q not registered", family)
	}
	if idx < 0 || idx >= len(set.Classes) {
		return "", errors.Errorf("index %d out of range for family %q", idx, family)
	}
	return set.Classes[idx].Name, nil
}

// GetIndex returns the class index for a given family and name.
func (m *ClassManager) GetIndex(family ModelFamily, name string) (int, error) {
	set, ok := m.sets[family]
	if !ok {
		return -1, errors.Errorf("family %q not registered", family)
	}
	idx, ok := set.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("name %q not found in family %q", name, family)
	}
	return idx, nil
}

// yoloLabels are the COCO labels in the order Darknet YOLOv3 emits them.
var yoloLabels = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck",
	"boat", "traffic light", "fire hydrant", "stop sign", "parking meter", "bench",
	"bird", "cat", "dog", "horse", "sheep", "cow", "elephant", "bear", "zebra",
	"giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup",
	"fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
	"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
	"hair drier", "toothbrush",
}

var (
	// YOLOClasses is the 80 COCO classes indexed from zero.
	YOLOClasses = NewOutputClassSet(ModelFamilyYOLO, yoloLabels)
	// COCOClasses is YOLOClasses shifted by one with "__background__" at index 0.
	COCOClasses = NewOutputClassSet(ModelFamilyCOCO, append([]string{"__background__"}, yoloLabels...))

	defaultClasses = NewClassManager(YOLOClasses, COCOClasses)
)

// ClassIndex returns the YOLO class index for a label such as "person".
func ClassIndex(name string) (int, error) {
	return defaultClasses.GetIndex(ModelFamilyYOLO, name)
}

// Label returns the YOLO class name for idx, or "unknown" if idx is out of range.
func Label(idx int) string {
	name, err := defaultClasses.GetName(ModelFamilyYOLO, idx)
	if err != nil {
		return "unknown"
	}
	return name
}
