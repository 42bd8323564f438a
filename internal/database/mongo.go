package database

import (
	"context"
	"fmt"
	"time"

	"keyshop/entity"
	"keyshop/internal/config"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionPurchases = "purchases"

// MongoDB is the purchase receipt journal. It is written after a purchase
// commits and read for purchase history; it never takes part in a purchase.
type MongoDB struct {
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) *MongoDB {
	if !conf.Mongo.Enabled {
		return nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	return &MongoDB{
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
}

func (m *MongoDB) connect(ctx context.Context) (*mongo.Client, error) {
	connection, err := mongo.Connect(ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	return connection, nil
}

func (m *MongoDB) disconnect(ctx context.Context, connection *mongo.Client) {
	_ = connection.Disconnect(ctx)
}

// receiptDoc keeps amounts as decimal strings so no float rounding
// happens in the journal.
type receiptDoc struct {
	Id          string    `bson:"purchase_id"`
	AccountId   int64     `bson:"account_id"`
	ProductId   int64     `bson:"product_id"`
	ProductName string    `bson:"product_name"`
	KeyId       int64     `bson:"key_id"`
	License     string    `bson:"license"`
	Price       string    `bson:"price"`
	Balance     string    `bson:"balance"`
	CreatedAt   time.Time `bson:"created_at"`
}

func newReceiptDoc(p *entity.Purchase) *receiptDoc {
	return &receiptDoc{
		Id:          p.Id,
		AccountId:   p.AccountId,
		ProductId:   p.ProductId,
		ProductName: p.ProductName,
		KeyId:       p.KeyId,
		License:     p.License,
		Price:       entity.FormatMoney(p.Price),
		Balance:     entity.FormatMoney(p.Balance),
		CreatedAt:   p.CreatedAt,
	}
}

func (d *receiptDoc) purchase() *entity.Purchase {
	price, _ := decimal.NewFromString(d.Price)
	balance, _ := decimal.NewFromString(d.Balance)
	return &entity.Purchase{
		Id:          d.Id,
		AccountId:   d.AccountId,
		ProductId:   d.ProductId,
		ProductName: d.ProductName,
		KeyId:       d.KeyId,
		License:     d.License,
		Price:       price,
		Balance:     balance,
		CreatedAt:   d.CreatedAt,
	}
}

func (m *MongoDB) SavePurchase(ctx context.Context, p *entity.Purchase) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionPurchases)
	filter := bson.D{{Key: "purchase_id", Value: p.Id}}
	update := bson.D{{Key: "$set", Value: newReceiptDoc(p)}}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// Purchases returns the latest receipts of the account, newest first.
func (m *MongoDB) Purchases(ctx context.Context, accountId int64, limit int) ([]*entity.Purchase, error) {
	connection, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(collectionPurchases)
	filter := bson.D{{Key: "account_id", Value: accountId}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []*receiptDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	list := make([]*entity.Purchase, 0, len(docs))
	for _, d := range docs {
		list = append(list, d.purchase())
	}
	return list, nil
}
