// Package models - class label sets for detection outputs.
package models

// ModelFamily identifies the label convention a network was trained with.
type ModelFamily string

const (
	// ModelFamilyCOCO is the 80 COCO classes with "__background__" at index 0.
	ModelFamilyCOCO ModelFamily = "coco"
	// ModelFamilyYOLO is the 80 COCO classes indexed from zero, no background.
	ModelFamilyYOLO ModelFamily = "yolo"
)
