// archive.go

package replay

import (
	"fmt"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jacl-coder/CyberChess-Server/internal/models"
)

// ArchiveVersion 回放存档格式版本
const ArchiveVersion = 1

// EncodeArchive 把对局记录编码为 protobuf Struct 字节流
func EncodeArchive(rec *models.MatchRecord) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("序列化对局记录失败: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("展开对局记录失败: %w", err)
	}

	body, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("构建存档失败: %w", err)
	}
	archive := &structpb.Struct{Fields: map[string]*structpb.Value{
		"version": structpb.NewNumberValue(ArchiveVersion),
		"record":  structpb.NewStructValue(body),
	}}

	data, err := proto.Marshal(archive)
	if err != nil {
		return nil, fmt.Errorf("编码存档失败: %w", err)
	}
	return data, nil
}

// DecodeArchive 还原 EncodeArchive 的结果
func DecodeArchive(data []byte) (*models.MatchRecord, error) {
	var archive structpb.Struct
	if err := proto.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("解码存档失败: %w", err)
	}

	if v := int(archive.GetFields()["version"].GetNumberValue()); v != ArchiveVersion {
		return nil, fmt.Errorf("%w: %d", ErrArchiveVersion, v)
	}
	body := archive.GetFields()["record"].GetStructValue()
	if body == nil {
		return nil, ErrEmptyArchive
	}

	raw, err := json.Marshal(body.AsMap())
	if err != nil {
		return nil, fmt.Errorf("展开存档失败: %w", err)
	}
	var rec models.MatchRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("解析对局记录失败: %w", err)
	}
	return &rec, nil
}
