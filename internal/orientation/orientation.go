package orientation

// Pose is the canonical representation of a corrected head orientation
// for viewers and MQTT consumers. The quaternion is in the output frame and
// the angles are in degrees.
type Pose struct {
	Quaternion Quaternion `json:"q"`
	Roll       float64    `json:"roll"`
	Pitch      float64    `json:"pitch"`
	Yaw        float64    `json:"yaw"`
}

// NewPose converts a corrected device-frame quaternion into a Pose.
func NewPose(corrected Quaternion) Pose {
	q := ToOutputFrame(corrected)
	deg := ToEuler(q).Degrees()
	return Pose{
		Quaternion: q,
		Roll:       deg.Roll,
		Pitch:      deg.Pitch,
		Yaw:        deg.Yaw,
	}
}
