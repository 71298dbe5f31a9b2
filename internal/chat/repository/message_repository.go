package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"realtime_chat_service/internal/chat/domain"
	errprocess "realtime_chat_service/pkg/err"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository definition append-only message log
type MessageRepository interface {
	// EnsureIndexes 建立查詢與冪等索引
	EnsureIndexes(ctx context.Context) error
	// NextSequence 取得聊天室下一個序號
	NextSequence(ctx context.Context, roomID string) (int64, error)
	Insert(ctx context.Context, msg *domain.Message) error
	FindByID(ctx context.Context, messageID string) (*domain.Message, error)
	FindByClientMsgID(ctx context.Context, roomID, senderID, clientMsgID string) (*domain.Message, error)
	// FindBefore newest first, strictly older than cursor
	FindBefore(ctx context.Context, roomID string, cursor domain.PageCursor, limit int) ([]domain.Message, error)
	// LatestByRooms created_at of each room's newest message
	LatestByRooms(ctx context.Context, roomIDs []string) (map[string]time.Time, error)
}

type chatMessageRepository struct {
	coll      *mongo.Collection
	sequences *mongo.Collection
}

// NewMongoChatMessageRepository create a ChatMessageRepository
func NewMongoChatMessageRepository(db *mongo.Database) MessageRepository {
	return &chatMessageRepository{
		coll:      db.Collection("chat_messages"),
		sequences: db.Collection("chat_sequences"),
	}
}

func (r *chatMessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "room_id", Value: 1}, {Key: "seq", Value: -1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			// 只有帶 client_msg_id 的訊息參與唯一性
			Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "sender_id", Value: 1}, {Key: "client_msg_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{
				"client_msg_id": bson.M{"$exists": true},
			}),
		},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

func (r *chatMessageRepository) NextSequence(ctx context.Context, roomID string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.sequences.FindOneAndUpdate(ctx,
		bson.M{"_id": roomID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, translateMongoErr("next sequence", err)
	}
	return counter.Seq, nil
}

func (r *chatMessageRepository) Insert(ctx context.Context, msg *domain.Message) error {
	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return translateMongoErr("insert message", err)
	}
	return nil
}

func (r *chatMessageRepository) FindByID(ctx context.Context, messageID string) (*domain.Message, error) {
	var msg domain.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg); err != nil {
		return nil, translateMongoErr("find message", err)
	}
	return &msg, nil
}

func (r *chatMessageRepository) FindByClientMsgID(ctx context.Context, roomID, senderID, clientMsgID string) (*domain.Message, error) {
	filter := bson.M{"room_id": roomID, "sender_id": senderID, "client_msg_id": clientMsgID}
	var msg domain.Message
	if err := r.coll.FindOne(ctx, filter).Decode(&msg); err != nil {
		return nil, translateMongoErr("find message by client id", err)
	}
	return &msg, nil
}

func (r *chatMessageRepository) FindBefore(ctx context.Context, roomID string, cursor domain.PageCursor, limit int) ([]domain.Message, error) {
	filter := bson.M{"room_id": roomID}
	switch {
	case cursor.BeforeSeq > 0:
		filter["seq"] = bson.M{"$lt": cursor.BeforeSeq}
	case cursor.Before != nil:
		filter["created_at"] = bson.M{"$lt": *cursor.Before}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, translateMongoErr("find messages", err)
	}
	defer cur.Close(ctx)

	messages := make([]domain.Message, 0, limit)
	if err := cur.All(ctx, &messages); err != nil {
		return nil, translateMongoErr("decode messages", err)
	}
	return messages, nil
}

func (r *chatMessageRepository) LatestByRooms(ctx context.Context, roomIDs []string) (map[string]time.Time, error) {
	result := make(map[string]time.Time, len(roomIDs))
	if len(roomIDs) == 0 {
		return result, nil
	}
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "room_id", Value: bson.D{{Key: "$in", Value: roomIDs}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$room_id"},
			{Key: "last_message_at", Value: bson.D{{Key: "$max", Value: "$created_at"}}},
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translateMongoErr("aggregate latest messages", err)
	}

	var rows []struct {
		RoomID        string    `bson:"_id"`
		LastMessageAt time.Time `bson:"last_message_at"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, translateMongoErr("decode latest messages", err)
	}
	for _, row := range rows {
		result[row.RoomID] = row.LastMessageAt
	}
	return result, nil
}

func translateMongoErr(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return errprocess.NotFound("%s: not found", op)
	case mongo.IsDuplicateKeyError(err):
		return &errprocess.Error{Kind: errprocess.KindConflict, Msg: op, Err: err}
	default:
		return errprocess.Transient(op, err)
	}
}
