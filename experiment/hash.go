package experiment

import "unicode/utf16"

// Hash 是 31 多项式字符串哈希（按 UTF-16 码元累加，32 位有符号溢出），返回绝对值。
// 同一输入在任何进程、任何时间都得到相同结果，分流因此稳定。
func Hash(s string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// Bucket 返回主体在实验中的分桶（0-99）。
func Bucket(subjectID, experimentID string) int {
	return int(Hash(subjectID+"-"+experimentID) % 100)
}

// audienceBucket 是受众抽样使用的第二个分桶（0-9999），与变体分桶相互独立。
func audienceBucket(subjectID, experimentID string) int {
	return int(Hash("audience:"+experimentID+":"+subjectID) % 10000)
}
