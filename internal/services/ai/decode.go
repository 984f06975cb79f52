package ai

import (
	"fmt"

	"catwatch/internal/models"
)

var cocoLabels = map[int]string{
	1:  "person",
	2:  "bicycle",
	3:  "car",
	4:  "motorcycle",
	5:  "airplane",
	6:  "bus",
	7:  "train",
	8:  "truck",
	16: "bird",
	17: "cat",
	18: "dog",
	19: "horse",
	20: "sheep",
	21: "cow",
}

// ClassLabel maps a COCO class id to its name.
func ClassLabel(classID int) string {
	if label, ok := cocoLabels[classID]; ok {
		return label
	}
	return fmt.Sprintf("unknown_%d", classID)
}

// decodeSSD turns raw SSD rows into pixel-space detections. Rows below the
// confidence threshold and boxes with no area after clamping are dropped.
func decodeSSD(rows [][ssdRowWidth]float32, width, height int, confidence float64) []models.Detection {
	var detections []models.Detection
	for _, row := range rows {
		score := float64(row[2])
		if score < confidence {
			continue
		}
		box := models.NewBox(
			clamp(int(row[3]*float32(width)), 0, width),
			clamp(int(row[4]*float32(height)), 0, height),
			clamp(int(row[5]*float32(width)), 0, width),
			clamp(int(row[6]*float32(height)), 0, height),
		)
		if box.Area() <= 0 {
			continue
		}
		detections = append(detections, models.Detection{
			Label:      ClassLabel(int(row[1])),
			Confidence: score,
			Box:        box,
		})
	}
	return detections
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
